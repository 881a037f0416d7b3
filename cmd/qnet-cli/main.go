// qnet-cli is a command-line client for interacting with a qnetd node's
// HTTP peer surface (spec §6).
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "qnet-cli",
		Usage: "interact with a running qnetd node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc",
				Value:   "http://127.0.0.1:8001",
				Usage:   "node HTTP address",
				EnvVars: []string{"QNET_CLI_RPC"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "height",
				Usage:  "print the current chain height",
				Action: wrap(cmdHeight),
			},
			{
				Name:      "microblock",
				Usage:     "fetch and print a microblock",
				ArgsUsage: "<height>",
				Action:    wrap(cmdMicroblock),
			},
			{
				Name:   "peers",
				Usage:  "list validated peers",
				Action: wrap(cmdPeers),
			},
			{
				Name:   "health",
				Usage:  "node health check",
				Action: wrap(cmdHealth),
			},
			{
				Name:      "challenge",
				Usage:     "ask the node to sign a hex challenge",
				ArgsUsage: "<hex>",
				Action:    wrap(cmdChallenge),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// wrap adapts a (client, cli.Context) command into a cli.ActionFunc,
// building the HTTP client from the --rpc flag.
func wrap(fn func(*httpClient, *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		client := &httpClient{base: c.String("rpc"), hc: &http.Client{Timeout: 5 * time.Second}}
		return fn(client, c)
	}
}

type httpClient struct {
	base string
	hc   *http.Client
}

func (c *httpClient) get(path string, out any) error {
	resp, err := c.hc.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *httpClient) postJSON(path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.hc.Post(c.base+path, "application/json", strings.NewReader(string(raw)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node returned %s: %s", resp.Status, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cmdHeight(c *httpClient, _ *cli.Context) error {
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := c.get("/api/v1/height", &result); err != nil {
		return err
	}
	fmt.Println(result.Height)
	return nil
}

func cmdMicroblock(c *httpClient, ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("usage: qnet-cli microblock <height>")
	}
	var result struct {
		Data string `json:"data"`
	}
	if err := c.get("/api/v1/microblock/"+ctx.Args().First(), &result); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(json.RawMessage(raw), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func cmdPeers(c *httpClient, _ *cli.Context) error {
	var result struct {
		Peers []struct {
			Address string `json:"address"`
		} `json:"peers"`
	}
	if err := c.get("/api/v1/peers", &result); err != nil {
		return err
	}
	for _, p := range result.Peers {
		fmt.Println(p.Address)
	}
	return nil
}

func cmdHealth(c *httpClient, _ *cli.Context) error {
	resp, err := c.hc.Get(c.base + "/api/v1/node/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	fmt.Println(resp.StatusCode == http.StatusOK)
	return nil
}

func cmdChallenge(c *httpClient, ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("usage: qnet-cli challenge <hex>")
	}
	req := struct {
		Challenge       string `json:"challenge"`
		Timestamp       int64  `json:"timestamp"`
		ProtocolVersion uint32 `json:"protocol_version"`
	}{
		Challenge:       ctx.Args().First(),
		Timestamp:       time.Now().Unix(),
		ProtocolVersion: 1,
	}
	var resp struct {
		Signature string `json:"signature"`
		PublicKey string `json:"public_key"`
	}
	if err := c.postJSON("/api/v1/auth/challenge", req, &resp); err != nil {
		return err
	}
	fmt.Printf("signature:  %s\npublic_key: %s\n", resp.Signature, resp.PublicKey)
	return nil
}
