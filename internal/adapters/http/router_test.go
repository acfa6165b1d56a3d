package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	router "github.com/dkeye/Proctor/internal/adapters/http"
	"github.com/dkeye/Proctor/internal/adapters/analysis"
	"github.com/dkeye/Proctor/internal/adapters/rtc"
	"github.com/dkeye/Proctor/internal/adapters/signal"
	"github.com/dkeye/Proctor/internal/app"
	"github.com/dkeye/Proctor/internal/app/orch"
	"github.com/dkeye/Proctor/internal/app/proctor"
	"github.com/dkeye/Proctor/internal/config"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/dkeye/Proctor/internal/mocks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	engine   *gin.Engine
	orch     *orch.Orchestrator
	pub      *mocks.MockPublisher
	analyzer *mocks.MockAnalyzer
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)

	if cfg == nil {
		cfg = &config.Config{Mode: "test", Secret: "s3cret"}
	}
	o := orch.New(app.NewRegistry(), app.NewDirectory(), nil)
	f := &fixture{
		orch:     o,
		pub:      mocks.NewMockPublisher(ctrl),
		analyzer: mocks.NewMockAnalyzer(ctrl),
	}
	f.engine = router.SetupRouter(context.Background(), cfg, router.Deps{
		Signal: signal.NewSignalWSController(o, signal.Options{}),
		Handlers: &router.Handlers{
			Publisher:   f.pub,
			Analyzer:    f.analyzer,
			Rooms:       o.Registry,
			ICE:         rtc.DefaultWebRTCConfig(),
			Connections: o.Conns.Len,
		},
		Metrics: metrics.NewRegistry(),
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestPublishProctoring(t *testing.T) {
	tests := []struct {
		description string
		body        string
		setup       func(p *mocks.MockPublisher)
		status      int
	}{
		{
			description: "Should accept and report deliveries",
			body:        `{"suspicious_activity":["face_anomaly"]}`,
			setup: func(p *mocks.MockPublisher) {
				p.EXPECT().
					Publish(gomock.Any(), domain.SessionID("s1"), json.RawMessage(`{"suspicious_activity":["face_anomaly"]}`)).
					Return(2, nil)
			},
			status: http.StatusAccepted,
		},
		{
			description: "Should reject invalid analysis",
			body:        `{nope`,
			setup: func(p *mocks.MockPublisher) {
				p.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, proctor.ErrInvalidAnalysis)
			},
			status: http.StatusBadRequest,
		},
		{
			description: "Should hide unexpected failures",
			body:        `{}`,
			setup: func(p *mocks.MockPublisher) {
				p.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, errors.New("boom"))
			},
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(f.pub)

			w := f.do(http.MethodPost, "/api/sessions/s1/proctoring", tt.body)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusAccepted {
				assert.Equal(t, float64(2), decode(t, w)["delivered"])
			}
		})
	}
}

func TestAnalyzeFrame(t *testing.T) {
	result := json.RawMessage(`{"faces":1}`)

	tests := []struct {
		description string
		body        string
		setup       func(f *fixture)
		status      int
	}{
		{
			description: "Should analyze then publish",
			body:        `{"frameData":"aGk="}`,
			setup: func(f *fixture) {
				gomock.InOrder(
					f.analyzer.EXPECT().AnalyzeFrame(gomock.Any(), domain.SessionID("s1"), "aGk=").Return(result, nil),
					f.pub.EXPECT().Publish(gomock.Any(), domain.SessionID("s1"), result).Return(1, nil),
				)
			},
			status: http.StatusOK,
		},
		{
			description: "Should require frame data",
			body:        `{}`,
			setup:       func(*fixture) {},
			status:      http.StatusBadRequest,
		},
		{
			description: "Should pass a refused frame back as bad request",
			body:        `{"frameData":"x"}`,
			setup: func(f *fixture) {
				f.analyzer.EXPECT().AnalyzeFrame(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, analysis.ErrFrameRejected)
			},
			status: http.StatusBadRequest,
		},
		{
			description: "Should map service failures to bad gateway",
			body:        `{"frameData":"x"}`,
			setup: func(f *fixture) {
				f.analyzer.EXPECT().AnalyzeFrame(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, analysis.ErrAnalysisFailed)
			},
			status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(f)

			w := f.do(http.MethodPost, "/api/sessions/s1/analyze-frame", tt.body)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				got := decode(t, w)
				assert.Equal(t, map[string]any{"faces": float64(1)}, got["analysis"])
				assert.Equal(t, float64(1), got["delivered"])
			}
		})
	}
}

func TestAnalyzeFrame_RateLimited(t *testing.T) {
	cfg := &config.Config{Mode: "test", Secret: "s3cret"}
	cfg.Analysis.FramesPerSecond = 0.001
	cfg.Analysis.FrameBurst = 1
	f := newFixture(t, cfg)

	f.analyzer.EXPECT().AnalyzeFrame(gomock.Any(), domain.SessionID("s1"), gomock.Any()).Return(json.RawMessage(`{}`), nil)
	f.pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/sessions/s1/analyze-frame", `{"frameData":"a"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/sessions/s1/analyze-frame", `{"frameData":"a"}`).Code)
}

func TestICEServers(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/api/ice-servers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.ICEServers, 1)
	assert.Equal(t, []string{rtc.DefaultSTUN}, got.ICEServers[0].URLs)
}

func TestRoomSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/rooms/s1", "").Code)

	f.orch.Registry.Join("s1", "a", domain.RoleParticipant)
	f.orch.Registry.Join("s1", "c", domain.RoleObserver)

	w := f.do(http.MethodGet, "/api/rooms/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "s1", got["sessionId"])
	assert.Equal(t, []any{
		map[string]any{"connectionId": "a", "role": "participant"},
		map[string]any{"connectionId": "c", "role": "observer"},
	}, got["members"])
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, float64(0), got["rooms"])

	w = f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "proctor_active_rooms")
}

func TestClientTokenCookie(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/healthz", "")
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "ProctorSessions", cookies[0].Name)
}
