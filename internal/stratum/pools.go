// Package stratum implements the Beam flavour of the stratum protocol: message
// codec, sessions, and the per-session job tracking used to deduplicate shares.
package stratum

import "sync"

// requestPool reuses decoded requests on the read path
var requestPool = sync.Pool{
	New: func() any {
		return &Request{}
	},
}

func getRequest() *Request {
	return requestPool.Get().(*Request)
}

func putRequest(req *Request) {
	if req != nil {
		req.reset()
		requestPool.Put(req)
	}
}
