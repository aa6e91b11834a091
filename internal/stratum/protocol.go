package stratum

import (
	"encoding/hex"
	"reflect"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/pkg/errors"
)

// Methods of the Beam stratum dialect
const (
	MethodLogin    = "login"
	MethodSolution = "solution"
	MethodJob      = "job"
	MethodResult   = "result"
)

const jsonRPCVersion = "2.0"

// CodeAccepted is the result code miners expect for an accepted share
const CodeAccepted int32 = 1

var fastJSON = sonic.ConfigDefault

func init() {
	for _, v := range []any{Request{}, Response{}, JobNotification{}} {
		_ = sonic.Pretouch(reflect.TypeOf(v))
	}
}

// Request is an inbound miner message. Beam carries parameters as top-level
// fields; they stay untyped so a wrong JSON type can be told apart from a
// missing field.
type Request struct {
	ID      any    `json:"id"`
	Method  string `json:"method"`
	JSONRPC string `json:"jsonrpc,omitempty"`
	APIKey  any    `json:"api_key,omitempty"`
	Nonce   any    `json:"nonce,omitempty"`
	Output  any    `json:"output,omitempty"`
}

func (r *Request) reset() {
	*r = Request{}
}

// Response answers one request. Result is nil for errors.
type Response struct {
	ID          any    `json:"id"`
	JSONRPC     string `json:"jsonrpc"`
	Method      string `json:"method"`
	Result      *bool  `json:"result,omitempty"`
	Code        int32  `json:"code"`
	Description string `json:"description"`
}

// JobNotification announces a job to a miner
type JobNotification struct {
	ID         string `json:"id"`
	JSONRPC    string `json:"jsonrpc"`
	Method     string `json:"method"`
	Input      string `json:"input"`
	Height     uint32 `json:"height"`
	Difficulty uint64 `json:"difficulty"`
}

// ParseRequest decodes one line of miner traffic
func ParseRequest(data []byte) (*Request, error) {
	req := getRequest()
	if err := fastJSON.Unmarshal(data, req); err != nil {
		putRequest(req)
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "parse_request", "invalid JSON")
	}
	if req.Method == "" {
		putRequest(req)
		return nil, errors.New(errors.ErrorTypeProtocol, "parse_request", "missing method")
	}
	return req, nil
}

// ReleaseRequest returns a request obtained from ParseRequest to the pool
func ReleaseRequest(req *Request) {
	putRequest(req)
}

// NewResultResponse builds a boolean result carrying a share status
func NewResultResponse(id any, ok bool, status share.Status) *Response {
	code := int32(status)
	if ok {
		code = CodeAccepted
	}
	return &Response{
		ID:          id,
		JSONRPC:     jsonRPCVersion,
		Method:      MethodResult,
		Result:      &ok,
		Code:        code,
		Description: status.Description(),
	}
}

// NewErrorResponse builds a protocol error response
func NewErrorResponse(id any, status share.Status) *Response {
	return &Response{
		ID:          id,
		JSONRPC:     jsonRPCVersion,
		Method:      MethodResult,
		Code:        int32(status),
		Description: status.Description(),
	}
}

// NewJobNotification builds the job message for a local job
func NewJobNotification(jobID uint32, input string, height uint32, difficulty uint64) *JobNotification {
	return &JobNotification{
		ID:         FormatJobID(jobID),
		JSONRPC:    jsonRPCVersion,
		Method:     MethodJob,
		Input:      input,
		Height:     height,
		Difficulty: difficulty,
	}
}

// Marshal encodes an outbound message
func Marshal(v any) ([]byte, error) {
	data, err := fastJSON.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "marshal_message", "failed to marshal JSON")
	}
	return data, nil
}

// FormatJobID renders a job id the way miners echo it back
func FormatJobID(jobID uint32) string {
	return strconv.FormatUint(uint64(jobID), 16)
}

// ParseHexUint32 parses a hex string field into 32 bits
func ParseHexUint32(v any) (uint32, bool) {
	n, ok := parseHex(v, 32)
	return uint32(n), ok
}

// ParseHexUint64 parses a hex string field into 64 bits
func ParseHexUint64(v any) (uint64, bool) {
	return parseHex(v, 64)
}

func parseHex(v any, bitSize int) (uint64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, bitSize)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseHexBlob checks that v is a non-empty hex string and returns it
func ParseHexBlob(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" || len(s)%2 != 0 {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return s, true
}
