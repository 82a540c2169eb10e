package syncworker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/calendar"
	"github.com/taskleaf/taskleaf/internal/contracts"
)

type providerCall struct {
	action   string
	userID   string
	remoteID string
	input    googlecal.EventInput
}

type fakeProvider struct {
	calls      []providerCall
	createID   string
	failTimes  int
	failWith   error
	callsSoFar int
}

func (f *fakeProvider) maybeFail() error {
	f.callsSoFar++
	if f.callsSoFar <= f.failTimes {
		if f.failWith != nil {
			return f.failWith
		}
		return errors.New("temporary upstream error")
	}
	return nil
}

func (f *fakeProvider) Connected(ctx context.Context, userID string) (bool, error) { return true, nil }

func (f *fakeProvider) ListEvents(ctx context.Context, userID string, from, to calendar.Date) ([]calendar.Event, error) {
	return nil, nil
}

func (f *fakeProvider) CreateEvent(ctx context.Context, userID string, in googlecal.EventInput) (string, error) {
	if err := f.maybeFail(); err != nil {
		return "", err
	}
	f.calls = append(f.calls, providerCall{action: "create", userID: userID, input: in})
	return f.createID, nil
}

func (f *fakeProvider) UpdateEvent(ctx context.Context, userID, remoteID string, in googlecal.EventInput) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.calls = append(f.calls, providerCall{action: "update", userID: userID, remoteID: remoteID, input: in})
	return nil
}

func (f *fakeProvider) DeleteEvent(ctx context.Context, userID, remoteID string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.calls = append(f.calls, providerCall{action: "delete", userID: userID, remoteID: remoteID})
	return nil
}

type fakeWriter struct {
	linked map[string]string
	err    error
}

func (f *fakeWriter) SetRemoteID(ctx context.Context, userID, entityID, remoteID string) error {
	if f.err != nil {
		return f.err
	}
	if f.linked == nil {
		f.linked = map[string]string{}
	}
	f.linked[entityID] = remoteID
	return nil
}

func newTestWorker(provider *fakeProvider) (*Service, *fakeWriter, *fakeWriter) {
	events := &fakeWriter{}
	tasks := &fakeWriter{}
	svc := NewService(provider, events, tasks)
	svc.Sleep = func(time.Duration) {}
	return svc, events, tasks
}

func marshalOp(t *testing.T, op contracts.SyncOperation) []byte {
	t.Helper()
	payload, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("marshal op: %v", err)
	}
	return payload
}

func TestCreateWritesRemoteIDBack(t *testing.T) {
	provider := &fakeProvider{createID: "rem-7"}
	svc, events, _ := newTestWorker(provider)

	err := svc.Handle(context.Background(), marshalOp(t, contracts.SyncOperation{
		OperationID: "op-1", UserID: "user-1", Kind: contracts.KindEvent, EntityID: "e1",
		Action: contracts.ActionCreateRemote, Title: "Dentist", Date: "2026-03-20", Time: "14:30",
	}))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if events.linked["e1"] != "rem-7" {
		t.Fatalf("remote id not written back: %+v", events.linked)
	}
	if len(provider.calls) != 1 || provider.calls[0].input.Date.String() != "2026-03-20" {
		t.Fatalf("unexpected provider calls: %+v", provider.calls)
	}
}

func TestCreateTaskUsesTaskWriter(t *testing.T) {
	provider := &fakeProvider{createID: "rem-8"}
	svc, events, tasks := newTestWorker(provider)

	err := svc.Handle(context.Background(), marshalOp(t, contracts.SyncOperation{
		OperationID: "op-1", UserID: "user-1", Kind: contracts.KindTask, EntityID: "t1",
		Action: contracts.ActionCreateRemote, Title: "File taxes", Date: "2026-04-01",
	}))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if tasks.linked["t1"] != "rem-8" || len(events.linked) != 0 {
		t.Fatalf("wrong writer used: events=%+v tasks=%+v", events.linked, tasks.linked)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{createID: "rem-9", failTimes: 2}
	svc, _, _ := newTestWorker(provider)

	err := svc.Handle(context.Background(), marshalOp(t, contracts.SyncOperation{
		OperationID: "op-1", UserID: "user-1", Kind: contracts.KindEvent, EntityID: "e1",
		Action: contracts.ActionCreateRemote, Title: "Dentist", Date: "2026-03-20",
	}))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("expected 1 successful call, got %d", len(provider.calls))
	}
}

func TestExhaustedRetriesReturnError(t *testing.T) {
	provider := &fakeProvider{createID: "rem-9", failTimes: 10}
	svc, _, _ := newTestWorker(provider)

	err := svc.Handle(context.Background(), marshalOp(t, contracts.SyncOperation{
		OperationID: "op-1", UserID: "user-1", Kind: contracts.KindEvent, EntityID: "e1",
		Action: contracts.ActionCreateRemote, Title: "Dentist", Date: "2026-03-20",
	}))
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}

func TestNotConnectedIsDroppedNotRetried(t *testing.T) {
	provider := &fakeProvider{failTimes: 10, failWith: googlecal.ErrNotConnected}
	svc, _, _ := newTestWorker(provider)

	err := svc.Handle(context.Background(), marshalOp(t, contracts.SyncOperation{
		OperationID: "op-1", UserID: "user-1", Kind: contracts.KindEvent, EntityID: "e1",
		Action: contracts.ActionCreateRemote, Title: "Dentist", Date: "2026-03-20",
	}))
	if err != nil {
		t.Fatalf("disconnected user should not redeliver, got %v", err)
	}
	if provider.callsSoFar != 1 {
		t.Fatalf("expected no retries, got %d attempts", provider.callsSoFar)
	}
}

func TestDeleteDispatch(t *testing.T) {
	provider := &fakeProvider{}
	svc, _, _ := newTestWorker(provider)

	err := svc.Handle(context.Background(), marshalOp(t, contracts.SyncOperation{
		OperationID: "op-1", UserID: "user-1", Kind: contracts.KindEvent,
		Action: contracts.ActionDeleteRemote, RemoteID: "rem-5",
	}))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(provider.calls) != 1 || provider.calls[0].action != "delete" || provider.calls[0].remoteID != "rem-5" {
		t.Fatalf("unexpected calls: %+v", provider.calls)
	}
}

func TestInvalidPayloadAndUnknownAction(t *testing.T) {
	svc, _, _ := newTestWorker(&fakeProvider{})

	if err := svc.Handle(context.Background(), []byte("{not json")); !errors.Is(err, ErrInvalidOperationPayload) {
		t.Fatalf("expected ErrInvalidOperationPayload, got %v", err)
	}

	// Unknown actions are terminal: dropped without redelivery.
	if err := svc.Handle(context.Background(), marshalOp(t, contracts.SyncOperation{
		OperationID: "op-1", UserID: "user-1", Action: "rename-remote",
	})); err != nil {
		t.Fatalf("unsupported action should be dropped, got %v", err)
	}
}

type fakeUserLister struct{ ids []string }

func (f fakeUserLister) ListGoogleConnectedUserIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}
