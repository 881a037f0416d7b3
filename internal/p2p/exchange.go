package p2p

// maxExchangePeers bounds how many peer records are shared in a single
// peer-exchange response, so the message stays small regardless of how
// large the local fabric has grown (spec §4.3 peer exchange).
const maxExchangePeers = 64

// PeerExchangeRequest asks a peer to share a sample of its known peers.
type PeerExchangeRequest struct {
	RequesterID string `json:"requester_id"`
	Limit       int    `json:"limit"`
}

// PeerExchangeResponse carries a sample of the responder's known peers.
type PeerExchangeResponse struct {
	Peers []PeerInfo `json:"peers"`
}

// BuildExchangeResponse samples up to req.Limit (capped at
// maxExchangePeers) peers from the fabric to answer a peer-exchange
// request, excluding the requester itself.
func (f *Fabric) BuildExchangeResponse(req PeerExchangeRequest) PeerExchangeResponse {
	limit := req.Limit
	if limit <= 0 || limit > maxExchangePeers {
		limit = maxExchangePeers
	}

	all := f.index.All()
	out := make([]PeerInfo, 0, limit)
	for _, p := range all {
		if p.NodeID == req.RequesterID {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return PeerExchangeResponse{Peers: out}
}

// MergeExchangeResponse returns the peers in resp whose node_id the local
// fabric does not already know, as unverified candidates. It does not add
// them to the fabric; the caller drives them through the normal admission
// pipeline before they count toward quorum.
func (f *Fabric) MergeExchangeResponse(resp PeerExchangeResponse) []PeerInfo {
	var candidates []PeerInfo
	for _, p := range resp.Peers {
		if _, known := f.index.GetByID(p.NodeID); known {
			continue
		}
		candidates = append(candidates, p)
	}
	return candidates
}
