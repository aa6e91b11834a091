package stratum

import (
	"strings"
	"testing"

	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/pkg/errors"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		check   func(t *testing.T, req *Request)
	}{
		{
			name: "solution",
			data: `{"method":"solution","id":"1a","nonce":"00ff00ff00ff00ff","output":"abcd","jsonrpc":"2.0"}`,
			check: func(t *testing.T, req *Request) {
				if req.Method != MethodSolution {
					t.Errorf("Method = %q", req.Method)
				}
				if req.ID != "1a" || req.Nonce != "00ff00ff00ff00ff" || req.Output != "abcd" {
					t.Errorf("unexpected fields: %+v", req)
				}
			},
		},
		{
			name: "login",
			data: `{"method":"login","api_key":"alice.rig1","id":"login","jsonrpc":"2.0"}`,
			check: func(t *testing.T, req *Request) {
				if req.APIKey != "alice.rig1" {
					t.Errorf("APIKey = %v", req.APIKey)
				}
			},
		},
		{
			name: "numeric nonce keeps its JSON type",
			data: `{"method":"solution","id":"1a","nonce":12345,"output":"abcd"}`,
			check: func(t *testing.T, req *Request) {
				if _, ok := req.Nonce.(string); ok {
					t.Error("Expected numeric nonce not to decode as a string")
				}
			},
		},
		{name: "invalid json", data: `{invalid json}`, wantErr: true},
		{name: "missing method", data: `{"id":"1"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsType(err, errors.ErrorTypeProtocol) {
					t.Errorf("Expected protocol error, got %v", err)
				}
				return
			}
			tt.check(t, req)
			ReleaseRequest(req)
		})
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want64 uint64
		ok64   bool
		want32 uint32
		ok32   bool
	}{
		{"plain", "1a", 0x1a, true, 0x1a, true},
		{"prefixed", "0xff", 0xff, true, 0xff, true},
		{"64-bit only", "100000000", 0x100000000, true, 0, false},
		{"max 64", "ffffffffffffffff", 1<<64 - 1, true, 0, false},
		{"too wide", "1ffffffffffffffff", 0, false, 0, false},
		{"not hex", "xyz", 0, false, 0, false},
		{"empty", "", 0, false, 0, false},
		{"number", float64(12), 0, false, 0, false},
		{"nil", nil, 0, false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got64, ok64 := ParseHexUint64(tt.in)
			if ok64 != tt.ok64 || (ok64 && got64 != tt.want64) {
				t.Errorf("ParseHexUint64() = %#x, %v, want %#x, %v", got64, ok64, tt.want64, tt.ok64)
			}
			got32, ok32 := ParseHexUint32(tt.in)
			if ok32 != tt.ok32 || (ok32 && got32 != tt.want32) {
				t.Errorf("ParseHexUint32() = %#x, %v, want %#x, %v", got32, ok32, tt.want32, tt.ok32)
			}
		})
	}
}

func TestParseHexBlob(t *testing.T) {
	tests := []struct {
		in any
		ok bool
	}{
		{"abcd", true},
		{"ABCD01", true},
		{"abc", false},
		{"zz", false},
		{"", false},
		{[]any{"ab"}, false},
	}

	for _, tt := range tests {
		if _, ok := ParseHexBlob(tt.in); ok != tt.ok {
			t.Errorf("ParseHexBlob(%v) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}

func TestResponses(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		data, err := Marshal(NewResultResponse("1a", true, share.StatusAccept))
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}
		got := string(data)
		for _, want := range []string{`"id":"1a"`, `"result":true`, `"code":1`, `"method":"result"`} {
			if !strings.Contains(got, want) {
				t.Errorf("response %s missing %s", got, want)
			}
		}
	})

	t.Run("rejected", func(t *testing.T) {
		resp := NewResultResponse("1a", false, share.StatusDuplicateShare)
		if resp.Result == nil || *resp.Result {
			t.Error("Expected result false")
		}
		if resp.Code != int32(share.StatusDuplicateShare) {
			t.Errorf("Code = %d, want %d", resp.Code, share.StatusDuplicateShare)
		}
	})

	t.Run("error", func(t *testing.T) {
		data, err := Marshal(NewErrorResponse("1a", share.StatusUnauthorized))
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}
		if strings.Contains(string(data), `"result"`) {
			t.Errorf("error response %s should not carry a result", data)
		}
		if !strings.Contains(string(data), `"code":24`) {
			t.Errorf("error response %s missing code 24", data)
		}
	})
}

func TestNewJobNotification(t *testing.T) {
	n := NewJobNotification(0x2a, "abcdef", 77, 512)
	if n.ID != "2a" || n.Method != MethodJob || n.Height != 77 || n.Difficulty != 512 {
		t.Errorf("unexpected notification: %+v", n)
	}

	id, ok := ParseHexUint32(n.ID)
	if !ok || id != 0x2a {
		t.Errorf("job id does not parse back: %v %v", id, ok)
	}
}
