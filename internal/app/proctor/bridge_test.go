package proctor_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Proctor/internal/app"
	"github.com/dkeye/Proctor/internal/app/orch"
	"github.com/dkeye/Proctor/internal/app/proctor"
	"github.com/dkeye/Proctor/internal/core"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBridge_Publish(t *testing.T) {
	ctx := context.Background()
	analysis := json.RawMessage(`{"suspicious_activity":["face_anomaly"]}`)

	tests := []struct {
		description string
		sid         domain.SessionID
		analysis    json.RawMessage
		setup       func(b *mocks.MockBroadcaster)
		want        int
		wantErr     error
	}{
		{
			description: "Should broadcast a proctoring update to the room",
			sid:         "s2",
			analysis:    analysis,
			setup: func(b *mocks.MockBroadcaster) {
				b.EXPECT().
					BroadcastRoom(domain.SessionID("s2"), domain.EventProctoringUpdate, domain.ProctoringUpdate{
						Type:      domain.EventProctoringUpdate,
						SessionID: "s2",
						Analysis:  analysis,
					}).
					Return(3, nil)
			},
			want: 3,
		},
		{
			description: "Should silently drop when nobody is in the room",
			sid:         "gone",
			analysis:    analysis,
			setup: func(b *mocks.MockBroadcaster) {
				b.EXPECT().BroadcastRoom(domain.SessionID("gone"), gomock.Any(), gomock.Any()).Return(0, nil)
			},
			want: 0,
		},
		{
			description: "Should reject an empty session id",
			sid:         "",
			analysis:    analysis,
			setup:       func(*mocks.MockBroadcaster) {},
			wantErr:     proctor.ErrNoSession,
		},
		{
			description: "Should reject a payload that is not JSON",
			sid:         "s2",
			analysis:    json.RawMessage(`{nope`),
			setup:       func(*mocks.MockBroadcaster) {},
			wantErr:     proctor.ErrInvalidAnalysis,
		},
		{
			description: "Should surface encoding failures",
			sid:         "s2",
			analysis:    analysis,
			setup: func(b *mocks.MockBroadcaster) {
				b.EXPECT().BroadcastRoom(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, errors.New("boom"))
			},
			wantErr: errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			out := mocks.NewMockBroadcaster(ctrl)
			tt.setup(out)

			n, err := proctor.NewBridge(out).Publish(ctx, tt.sid, tt.analysis)
			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, proctor.ErrNoSession) || errors.Is(tt.wantErr, proctor.ErrInvalidAnalysis) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestBridge_CanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mocks.NewMockBroadcaster(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proctor.NewBridge(out).Publish(ctx, "s1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
}

// A lone subscriber receives the analysis verbatim, exactly once.
func TestBridge_SubscriberReceivesUpdate(t *testing.T) {
	o := orch.New(app.NewRegistry(), app.NewDirectory(), nil)
	c := core.NewConn("C", core.ConnOptions{OnClose: o.OnDisconnect})
	o.Conns.Bind(c)
	require.NoError(t, o.Dispatch(context.Background(), domain.Inbound{
		Type: domain.EventSubscribeUpdates, SessionID: "s2", From: "C",
	}))

	analysis := json.RawMessage(`{"suspicious_activity":["face_anomaly"]}`)
	n, err := proctor.NewBridge(o).Publish(context.Background(), "s2", analysis)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := c.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.EventProctoringUpdate, msgs[0].Type)
	var got domain.ProctoringUpdate
	require.NoError(t, json.Unmarshal(msgs[0].Frame, &got))
	assert.Equal(t, domain.SessionID("s2"), got.SessionID)
	assert.JSONEq(t, string(analysis), string(got.Analysis))
}

func TestBridge_PublishToEmptySession(t *testing.T) {
	o := orch.New(app.NewRegistry(), app.NewDirectory(), nil)
	n, err := proctor.NewBridge(o).Publish(context.Background(), "nobody", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, o.Registry.Exists("nobody"))
}
