package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/monitor-relay/internal/github"
	"github.com/mattjoyce/monitor-relay/internal/relay/mocks"
	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

const operator = "1001"

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

func textUpdate(id, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message:  &telegram.Message{Chat: telegram.Chat{ID: chatID}, Text: &text},
	}
}

var threeWorkflows = []Workflow{
	{ID: "a.yml", Label: "A"},
	{ID: "b.yml", Label: "B"},
	{ID: "c.yml", Label: "C"},
}

func newTestRelay(t *testing.T, workflows []Workflow) (*Relay, *mocks.MockNotifier, *mocks.MockGateway, *bytes.Buffer) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	gateway := mocks.NewMockGateway(ctrl)
	logger, buf := newTestLogger()
	r := New(Config{OperatorChatID: operator, Workflows: workflows}, notifier, gateway, logger)
	return r, notifier, gateway, buf
}

func TestHandleUnauthorizedMakesNoCalls(t *testing.T) {
	r, _, _, _ := newTestRelay(t, threeWorkflows)

	for _, text := range []string{"/test", "/trigger", "/status"} {
		r.Handle(context.Background(), textUpdate(1, 2002, text))
	}
	r.Handle(context.Background(), telegram.Update{UpdateID: 2})
	// gomock fails the test on any unexpected Notify/TriggerWorkflow/LatestRun.
}

func TestHandleUnknownTextIsIgnored(t *testing.T) {
	r, _, _, _ := newTestRelay(t, threeWorkflows)

	for _, text := range []string{"hello", "/trigger now", "/STATUS", "", "/test@bot"} {
		r.Handle(context.Background(), textUpdate(1, 1001, text))
	}
}

func TestHandleTest(t *testing.T) {
	r, notifier, _, _ := newTestRelay(t, threeWorkflows)
	notifier.EXPECT().Notify(gomock.Any(), MessageAlive).Return(nil).Times(1)

	r.Handle(context.Background(), textUpdate(1, 1001, "  /test\n"))
}

func TestHandleTriggerAllSucceed(t *testing.T) {
	r, notifier, gateway, _ := newTestRelay(t, threeWorkflows)

	gomock.InOrder(
		notifier.EXPECT().Notify(gomock.Any(), MessageTriggerStarting).Return(nil),
		gateway.EXPECT().TriggerWorkflow(gomock.Any(), "a.yml").Return(nil),
		gateway.EXPECT().TriggerWorkflow(gomock.Any(), "b.yml").Return(nil),
		gateway.EXPECT().TriggerWorkflow(gomock.Any(), "c.yml").Return(nil),
		notifier.EXPECT().Notify(gomock.Any(), MessageTriggerSucceeded).Return(nil),
	)

	r.Handle(context.Background(), textUpdate(1, 1001, "/trigger"))
}

func TestHandleTriggerStopsAtFirstFailure(t *testing.T) {
	r, notifier, gateway, logs := newTestRelay(t, threeWorkflows)

	gomock.InOrder(
		notifier.EXPECT().Notify(gomock.Any(), MessageTriggerStarting).Return(nil),
		gateway.EXPECT().TriggerWorkflow(gomock.Any(), "a.yml").Return(nil),
		gateway.EXPECT().TriggerWorkflow(gomock.Any(), "b.yml").
			Return(&github.APIError{StatusCode: 422, Body: "no dispatch trigger"}),
		notifier.EXPECT().Notify(gomock.Any(), MessageTriggerFailed).Return(nil).Times(1),
	)
	gateway.EXPECT().TriggerWorkflow(gomock.Any(), "c.yml").Times(0)

	r.Handle(context.Background(), textUpdate(1, 1001, "/trigger"))

	assert.Contains(t, logs.String(), "Workflow trigger failed")
	assert.Contains(t, logs.String(), "b.yml")
}

func TestHandleLogsCorrelationFields(t *testing.T) {
	r, notifier, gateway, logs := newTestRelay(t, threeWorkflows[:1])

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	gateway.EXPECT().TriggerWorkflow(gomock.Any(), "a.yml").Return(nil)

	r.Handle(context.Background(), textUpdate(77, 1001, "/trigger"))

	var triggered map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == "Workflow triggered" {
			triggered = rec
		}
	}
	require.NotNil(t, triggered, "no Workflow triggered record in %s", logs.String())
	assert.Equal(t, "relay", triggered["component"])
	assert.Equal(t, float64(77), triggered["update_id"])
	assert.Equal(t, "a.yml", triggered["workflow"])
	assert.NotEmpty(t, triggered["dispatch_id"])
}

func TestHandleTriggerNotifyFailureIsLogged(t *testing.T) {
	r, notifier, gateway, logs := newTestRelay(t, threeWorkflows[:1])

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("telegram down")).Times(2)
	gateway.EXPECT().TriggerWorkflow(gomock.Any(), "a.yml").Return(nil)

	r.Handle(context.Background(), textUpdate(1, 1001, "/trigger"))

	assert.Contains(t, logs.String(), "Failed to notify operator")
}

func TestHandleStatusReport(t *testing.T) {
	workflows := []Workflow{{ID: "a.yml", Label: "A"}, {ID: "b.yml", Label: "B"}}
	r, notifier, gateway, _ := newTestRelay(t, workflows)

	run := &github.Run{Status: "completed", Conclusion: "success", Event: "schedule"}
	gateway.EXPECT().LatestRun(gomock.Any(), "a.yml").Return(nil, nil)
	gateway.EXPECT().LatestRun(gomock.Any(), "b.yml").Return(run, nil)
	notifier.EXPECT().Notify(gomock.Any(), FormatReport([]WorkflowStatus{
		{Workflow: workflows[0]},
		{Workflow: workflows[1], Run: run},
	})).Return(nil)

	r.Handle(context.Background(), textUpdate(1, 1001, "/status"))
}

func TestHandleStatusFailureSendsOneNotification(t *testing.T) {
	workflows := []Workflow{{ID: "a.yml", Label: "A"}, {ID: "b.yml", Label: "B"}}
	r, notifier, gateway, _ := newTestRelay(t, workflows)

	gateway.EXPECT().LatestRun(gomock.Any(), "a.yml").Return(&github.Run{Status: "queued"}, nil).AnyTimes()
	gateway.EXPECT().LatestRun(gomock.Any(), "b.yml").Return(nil, &github.APIError{StatusCode: 500, Body: "boom"})
	notifier.EXPECT().Notify(gomock.Any(), MessageStatusFailed).Return(nil).Times(1)

	r.Handle(context.Background(), textUpdate(1, 1001, "/status"))
}
