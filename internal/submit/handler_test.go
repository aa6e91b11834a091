package submit

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/limiter"
	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/internal/stratum"
	"github.com/bardlex/beampool/internal/validation"
	"github.com/bardlex/beampool/pkg/log"
)

const (
	testChain   uint32 = 3
	testJobID   uint32 = 0x1a
	testInput          = "0123456789abcdef00112233445566778899aabbccddeeff0011223344556677"
	testBits    uint32 = 0x1c2ac4af
	testHeight  uint32 = 1_520_331
	testDiff    uint64 = 4096
	testSession uint32 = 0x00ab1234
)

var testClock = time.Unix(1_760_000_000, 0)

type response struct {
	ReqID  any
	Kind   string
	Status share.Status
}

type fakeSession struct {
	authenticated bool
	worker        stratum.Worker
	tracker       *stratum.LocalJobTracker
	dropDiffs     bool
	responses     []response
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		authenticated: true,
		worker:        stratum.NewWorker(1042, "alice", "rig1"),
		tracker:       stratum.NewLocalJobTracker(8),
	}
}

func (f *fakeSession) IsAuthenticated() bool        { return f.authenticated }
func (f *fakeSession) Worker() stratum.Worker       { return f.worker }
func (f *fakeSession) SessionID() uint32            { return testSession }
func (f *fakeSession) ClientIP() string             { return "203.0.113.7" }
func (f *fakeSession) FindLocalJob(id uint32) (*stratum.LocalJob, bool) {
	return f.tracker.FindLocalJob(id)
}
func (f *fakeSession) AddLocalShare(lj *stratum.LocalJob, ls stratum.LocalShare) bool {
	return f.tracker.AddLocalShare(lj, ls)
}
func (f *fakeSession) DiffContext(lj *stratum.LocalJob) (stratum.DiffContext, bool) {
	if f.dropDiffs {
		return stratum.DiffContext{}, false
	}
	return f.tracker.DiffContext(lj)
}
func (f *fakeSession) ResponseError(reqID any, status share.Status) {
	f.responses = append(f.responses, response{reqID, "error", status})
}
func (f *fakeSession) ResponseFalse(reqID any, status share.Status) {
	f.responses = append(f.responses, response{reqID, "false", status})
}
func (f *fakeSession) HandleShare(reqID any, status share.Status, diff uint64) bool {
	if share.IsAccepted(status) {
		f.responses = append(f.responses, response{reqID, "true", status})
		return true
	}
	f.ResponseFalse(reqID, status)
	return false
}

func (f *fakeSession) last() response {
	return f.responses[len(f.responses)-1]
}

type fakeValidator struct {
	status   share.Status
	calls    int
	seen     share.Share
	jobDiffs []uint64
}

func (v *fakeValidator) CheckShare(_ uint32, s share.Share, _ *job.JobEx, _ string, jobDiffs []uint64, _ string) share.Status {
	v.calls++
	v.seen = s
	v.jobDiffs = jobDiffs
	return v.status
}

type solvedCall struct {
	chainID uint32
	share   share.Share
	input   string
	output  string
	worker  string
}

type fakePublisher struct {
	shares [][]byte
	solved []solvedCall
}

func (p *fakePublisher) SendShare(_ uint32, data []byte) {
	p.shares = append(p.shares, append([]byte(nil), data...))
}

func (p *fakePublisher) SendSolvedShare(chainID uint32, s *share.Share, input, output string, worker stratum.Worker) {
	p.solved = append(p.solved, solvedCall{chainID, *s, input, output, worker.FullName})
}

type recorded struct {
	status    share.Status
	published bool
}

type fakeRecorder struct{ outcomes []recorded }

func (r *fakeRecorder) RecordShare(_ uint32, _ string, status share.Status, _ uint64, published bool) {
	r.outcomes = append(r.outcomes, recorded{status, published})
}

type fixture struct {
	handler   *Handler
	session   *fakeSession
	validator *fakeValidator
	publisher *fakePublisher
	recorder  *fakeRecorder
	limiters  *limiter.Registry
	repo      *job.Repository
}

func newFixture(t *testing.T, status share.Status) *fixture {
	t.Helper()

	registry := job.NewRegistry()
	repo := job.NewRepository(testChain, 16, time.Hour)
	registry.Register(repo)

	payload, err := job.NewBeamJob(testInput, testBits, testHeight)
	if err != nil {
		t.Fatalf("NewBeamJob() failed: %v", err)
	}
	repo.Add(job.NewJobEx(testChain, testJobID, payload, true, testClock))

	f := &fixture{
		session:   newFakeSession(),
		validator: &fakeValidator{status: status},
		publisher: &fakePublisher{},
		recorder:  &fakeRecorder{},
		limiters:  limiter.NewRegistry(60),
		repo:      repo,
	}
	f.session.tracker.AddLocalJob(testChain, testJobID, testDiff)

	f.handler = NewHandler(
		Config{InvalidShareWindow: 60, InvalidShareLimit: 3},
		registry, f.validator, f.publisher, f.limiters, log.Discard(),
		WithRecorder(f.recorder),
		WithClock(func() time.Time { return testClock }),
	)
	return f
}

func (f *fixture) invalidCount() int64 {
	return f.limiters.Window(f.session.worker.WorkerHashID, testClock).Sum(testClock.Unix(), 60)
}

func (f *fixture) dedupCount() int {
	lj, ok := f.session.tracker.FindLocalJob(testJobID)
	if !ok {
		return 0
	}
	return f.session.tracker.ShareCount(lj)
}

func solution(nonce string) Request {
	return Request{ReqID: "1a", JobID: "1a", Nonce: nonce, Output: "deadbeefcafe"}
}

func TestSubmit_Unauthorized(t *testing.T) {
	f := newFixture(t, share.StatusAccept)
	f.session.authenticated = false

	f.handler.Submit(f.session, solution("01"))

	if got := f.session.last(); got.Kind != "error" || got.Status != share.StatusUnauthorized {
		t.Errorf("response = %+v, want UNAUTHORIZED error", got)
	}
	if f.validator.calls != 0 || len(f.publisher.shares) != 0 {
		t.Error("Expected no validation or publish")
	}
}

func TestSubmit_IllegalParams(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"numeric nonce", Request{ReqID: 1, JobID: "1a", Nonce: float64(1), Output: "ab"}},
		{"non-hex nonce", Request{ReqID: 1, JobID: "1a", Nonce: "xyz", Output: "ab"}},
		{"missing nonce", Request{ReqID: 1, JobID: "1a", Output: "ab"}},
		{"non-hex job id", Request{ReqID: 1, JobID: "job1", Nonce: "01", Output: "ab"}},
		{"job id too wide", Request{ReqID: 1, JobID: "100000000", Nonce: "01", Output: "ab"}},
		{"numeric job id", Request{ReqID: 1, JobID: float64(26), Nonce: "01", Output: "ab"}},
		{"non-hex output", Request{ReqID: 1, JobID: "1a", Nonce: "01", Output: "zz"}},
		{"empty output", Request{ReqID: 1, JobID: "1a", Nonce: "01", Output: ""}},
		{"missing output", Request{ReqID: 1, JobID: "1a", Nonce: "01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, share.StatusAccept)
			beforeInvalid, beforeDedup := f.invalidCount(), f.dedupCount()

			f.handler.Submit(f.session, tt.req)

			if got := f.session.last(); got.Kind != "error" || got.Status != share.StatusIllegalParams {
				t.Errorf("response = %+v, want ILLEGAL_PARAMS error", got)
			}
			if f.invalidCount() != beforeInvalid {
				t.Error("Expected invalid share counter unchanged")
			}
			if f.dedupCount() != beforeDedup {
				t.Error("Expected dedup set unchanged")
			}
			if len(f.publisher.shares) != 0 {
				t.Error("Expected nothing published")
			}
		})
	}
}

func TestSubmit_JobNotFound(t *testing.T) {
	t.Run("unknown to session", func(t *testing.T) {
		f := newFixture(t, share.StatusAccept)

		f.handler.Submit(f.session, Request{ReqID: "ff", JobID: "ff", Nonce: "01", Output: "ab"})

		if got := f.session.last(); got.Kind != "false" || got.Status != share.StatusJobNotFound {
			t.Errorf("response = %+v, want false/JOB_NOT_FOUND", got)
		}
		if f.invalidCount() != 0 || f.dedupCount() != 0 || f.validator.calls != 0 {
			t.Error("Expected no counters mutated")
		}
	})

	t.Run("rotated out of repository", func(t *testing.T) {
		f := newFixture(t, share.StatusAccept)
		f.session.tracker.AddLocalJob(testChain, 0x2b, testDiff)

		f.handler.Submit(f.session, Request{ReqID: "2b", JobID: "2b", Nonce: "01", Output: "ab"})

		if got := f.session.last(); got.Kind != "false" || got.Status != share.StatusJobNotFound {
			t.Errorf("response = %+v, want false/JOB_NOT_FOUND", got)
		}
		if f.invalidCount() != 0 || len(f.publisher.shares) != 0 {
			t.Error("Expected no counters mutated and nothing published")
		}
	})
}

func TestSubmit_MissingDiffContextDropsRequest(t *testing.T) {
	f := newFixture(t, share.StatusAccept)
	f.session.dropDiffs = true

	f.handler.Submit(f.session, solution("01"))

	if len(f.session.responses) != 0 {
		t.Errorf("Expected no response, got %+v", f.session.responses)
	}
	if f.validator.calls != 0 || len(f.publisher.shares) != 0 || f.dedupCount() != 0 {
		t.Error("Expected request dropped before any state change")
	}
}

func TestSubmit_Duplicate(t *testing.T) {
	f := newFixture(t, share.StatusAccept)

	f.handler.Submit(f.session, solution("00000000deadbeef"))
	if got := f.session.last(); got.Kind != "true" {
		t.Fatalf("first response = %+v, want accepted", got)
	}

	before := f.invalidCount()
	f.handler.Submit(f.session, solution("deadbeef"))

	if got := f.session.last(); got.Kind != "false" || got.Status != share.StatusDuplicateShare {
		t.Errorf("response = %+v, want false/DUPLICATE_SHARE", got)
	}
	if got := f.invalidCount() - before; got != 1 {
		t.Errorf("invalid counter increased by %d, want 1", got)
	}
	if f.validator.calls != 1 {
		t.Errorf("validator called %d times, want 1", f.validator.calls)
	}
	if len(f.publisher.shares) != 1 {
		t.Errorf("published %d shares, want 1", len(f.publisher.shares))
	}
}

func TestSubmit_AcceptedRecord(t *testing.T) {
	f := newFixture(t, share.StatusAccept)

	f.handler.Submit(f.session, solution("0xfeedfacecafebeef"))

	if len(f.publisher.shares) != 1 {
		t.Fatalf("published %d shares, want 1", len(f.publisher.shares))
	}
	got, err := share.UnmarshalWithVersion(f.publisher.shares[0])
	if err != nil {
		t.Fatalf("UnmarshalWithVersion() failed: %v", err)
	}

	want := share.Share{
		Version:      share.Version,
		WorkerHashID: f.session.worker.WorkerHashID,
		UserID:       1042,
		Status:       share.StatusAccept,
		Timestamp:    testClock.Unix(),
		IP:           "203.0.113.7",
		InputPrefix:  0x0123456789abcdef,
		ShareDiff:    testDiff,
		BlockBits:    testBits,
		Height:       testHeight,
		Nonce:        0xfeedfacecafebeef,
		SessionID:    testSession,
	}
	if *got != want {
		t.Errorf("record = %+v, want %+v", *got, want)
	}

	if f.validator.seen.Status != share.StatusRejectNoReason {
		t.Errorf("validator saw status %s, want REJECT_NO_REASON", f.validator.seen.Status)
	}
	if len(f.publisher.solved) != 0 {
		t.Error("Expected no solved share event")
	}
	if !reflect.DeepEqual(f.recorder.outcomes, []recorded{{share.StatusAccept, true}}) {
		t.Errorf("recorder outcomes = %+v", f.recorder.outcomes)
	}
}

func TestSubmit_ShareDiffFollowsDiffContext(t *testing.T) {
	f := newFixture(t, share.StatusAccept)
	lj, _ := f.session.tracker.FindLocalJob(testJobID)
	f.session.tracker.Retarget(lj, 8192)

	f.handler.Submit(f.session, solution("02"))

	got, err := share.UnmarshalWithVersion(f.publisher.shares[0])
	if err != nil {
		t.Fatalf("UnmarshalWithVersion() failed: %v", err)
	}
	if got.ShareDiff != 8192 {
		t.Errorf("ShareDiff = %d, want current job diff 8192", got.ShareDiff)
	}
}

func TestSubmit_LateShareKeepsAssignedDifficulty(t *testing.T) {
	f := newFixture(t, share.StatusAccept)

	payload, err := job.NewBeamJob(testInput, testBits, testHeight+1)
	if err != nil {
		t.Fatalf("NewBeamJob() failed: %v", err)
	}
	f.repo.Add(job.NewJobEx(testChain, testJobID+1, payload, true, testClock))
	f.session.tracker.AddLocalJob(testChain, testJobID+1, 4*testDiff)

	f.handler.Submit(f.session, solution("03"))

	got, err := share.UnmarshalWithVersion(f.publisher.shares[0])
	if err != nil {
		t.Fatalf("UnmarshalWithVersion() failed: %v", err)
	}
	if got.ShareDiff != testDiff {
		t.Errorf("ShareDiff = %d, want the job's own diff %d", got.ShareDiff, testDiff)
	}
	if !reflect.DeepEqual(f.validator.jobDiffs, []uint64{testDiff}) {
		t.Errorf("validator jobDiffs = %v, want [%d]", f.validator.jobDiffs, testDiff)
	}
}

func TestSubmit_LateShareCreditedAtMetDifficulty(t *testing.T) {
	f := newFixture(t, share.StatusAccept)

	// every hash meets difficulty 1, most miss difficulty 4
	maxTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	validator := validation.NewValidatorWithLimit(maxTarget, log.Discard())
	registry := job.NewRegistry()
	registry.Register(f.repo)
	handler := NewHandler(
		Config{InvalidShareWindow: 60, InvalidShareLimit: 3},
		registry, validator, f.publisher, f.limiters, log.Discard(),
		WithClock(func() time.Time { return testClock }),
	)

	session := newFakeSession()
	session.tracker.AddLocalJob(testChain, testJobID, 1)

	payload, err := job.NewBeamJob(testInput, testBits, testHeight+1)
	if err != nil {
		t.Fatalf("NewBeamJob() failed: %v", err)
	}
	f.repo.Add(job.NewJobEx(testChain, testJobID+1, payload, false, testClock))
	session.tracker.AddLocalJob(testChain, testJobID+1, 4)

	j, _ := f.repo.Get(testJobID)
	input, _ := hex.DecodeString(j.Payload.WorkInput())
	output, _ := hex.DecodeString("deadbeefcafe")
	nonce := uint64(0)
	for ; ; nonce++ {
		hash := validation.PowHash(input, nonce, output)
		if blockchain.HashToBig(&hash).Cmp(validator.ShareTarget(4)) > 0 {
			break
		}
	}

	handler.Submit(session, solution(fmt.Sprintf("%016x", nonce)))

	if last := session.last(); last.Kind != "true" {
		t.Fatalf("response = %+v, want accepted", last)
	}
	got, err := share.UnmarshalWithVersion(f.publisher.shares[0])
	if err != nil {
		t.Fatalf("UnmarshalWithVersion() failed: %v", err)
	}
	if got.ShareDiff != 1 {
		t.Errorf("ShareDiff = %d, want 1 for a hash that misses difficulty 4", got.ShareDiff)
	}
}

func TestSubmit_Solved(t *testing.T) {
	for _, status := range []share.Status{share.StatusSolved, share.StatusSolvedStale, share.StatusSolvedPreliminary} {
		t.Run(status.String(), func(t *testing.T) {
			f := newFixture(t, status)

			f.handler.Submit(f.session, solution("03"))

			if len(f.publisher.solved) != 1 {
				t.Fatalf("solved events = %d, want 1", len(f.publisher.solved))
			}
			if len(f.publisher.shares) != 1 {
				t.Fatalf("share records = %d, want 1", len(f.publisher.shares))
			}
			call := f.publisher.solved[0]
			if call.input != testInput || call.output != "deadbeefcafe" || call.worker != "alice.rig1" {
				t.Errorf("solved call = %+v", call)
			}
			if call.share.Status != status || call.chainID != testChain {
				t.Errorf("solved share status = %s chain = %d", call.share.Status, call.chainID)
			}
		})
	}
}

func TestSubmit_InvalidShareFlood(t *testing.T) {
	f := newFixture(t, share.StatusLowDifficulty)

	for i := range 6 {
		f.handler.Submit(f.session, solution(fmt.Sprintf("%x", 0x100+i)))
	}

	if len(f.session.responses) != 6 {
		t.Fatalf("responses = %d, want 6", len(f.session.responses))
	}
	for _, r := range f.session.responses {
		if r.Kind != "false" || r.Status != share.StatusLowDifficulty {
			t.Errorf("response = %+v, want false/LOW_DIFFICULTY", r)
		}
	}

	// the third invalid share reaches the limit of 3
	if len(f.publisher.shares) != 2 {
		t.Errorf("published %d shares, want 2", len(f.publisher.shares))
	}
	if f.invalidCount() != 6 {
		t.Errorf("invalid count = %d, want 6", f.invalidCount())
	}

	suppressed := 0
	for _, o := range f.recorder.outcomes {
		if !o.published {
			suppressed++
		}
	}
	if suppressed != 4 {
		t.Errorf("suppressed outcomes = %d, want 4", suppressed)
	}
}

func TestSubmit_FloodCountsDuplicates(t *testing.T) {
	f := newFixture(t, share.StatusAccept)

	f.handler.Submit(f.session, solution("05"))
	f.handler.Submit(f.session, solution("05"))
	f.handler.Submit(f.session, solution("05"))

	f.validator.status = share.StatusLowDifficulty
	f.handler.Submit(f.session, solution("06"))

	// two duplicates plus one low difficulty share reach the limit
	if len(f.publisher.shares) != 1 {
		t.Errorf("published %d shares, want only the first accepted one", len(f.publisher.shares))
	}
}

func TestSubmit_FloodDoesNotBlockAccepted(t *testing.T) {
	f := newFixture(t, share.StatusLowDifficulty)
	for i := range 5 {
		f.handler.Submit(f.session, solution(fmt.Sprintf("%x", 0x200+i)))
	}
	published := len(f.publisher.shares)

	f.validator.status = share.StatusAccept
	f.handler.Submit(f.session, solution("300"))

	if len(f.publisher.shares) != published+1 {
		t.Error("Expected accepted share to be published during a flood")
	}
}

func TestSubmit_Deterministic(t *testing.T) {
	run := func() ([]response, [][]byte) {
		f := newFixture(t, share.StatusAccept)
		f.handler.Submit(f.session, solution("10"))
		f.handler.Submit(f.session, solution("10"))
		f.validator.status = share.StatusLowDifficulty
		f.handler.Submit(f.session, solution("11"))
		f.handler.Submit(f.session, Request{ReqID: "x", JobID: "zz", Nonce: "1", Output: "ab"})
		return f.session.responses, f.publisher.shares
	}

	respA, sharesA := run()
	respB, sharesB := run()

	if !reflect.DeepEqual(respA, respB) {
		t.Errorf("responses differ:\n%+v\n%+v", respA, respB)
	}
	if len(sharesA) != len(sharesB) {
		t.Fatalf("record counts differ: %d vs %d", len(sharesA), len(sharesB))
	}
	for i := range sharesA {
		if !bytes.Equal(sharesA[i], sharesB[i]) {
			t.Errorf("record %d differs", i)
		}
	}
}

func BenchmarkSubmit(b *testing.B) {
	registry := job.NewRegistry()
	repo := job.NewRepository(testChain, 16, time.Hour)
	registry.Register(repo)
	payload, err := job.NewBeamJob(testInput, testBits, testHeight)
	if err != nil {
		b.Fatal(err)
	}
	repo.Add(job.NewJobEx(testChain, testJobID, payload, true, testClock))

	sess := newFakeSession()
	sess.tracker.AddLocalJob(testChain, testJobID, testDiff)
	h := NewHandler(Config{InvalidShareWindow: 60, InvalidShareLimit: 20}, registry,
		&fakeValidator{status: share.StatusAccept}, &fakePublisher{}, limiter.NewRegistry(60), log.Discard())

	var nonce uint64
	b.ReportAllocs()
	for b.Loop() {
		nonce++
		sess.responses = sess.responses[:0]
		h.Submit(sess, solution(fmt.Sprintf("%x", nonce)))
	}
}
