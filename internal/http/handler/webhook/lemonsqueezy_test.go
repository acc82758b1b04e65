package webhook_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/http/handler/webhook"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/mapper"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/metrics"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/paycontext"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/signature"
)

const secret = "whsec_test"

const orderCreated = `{
	"meta":{"event_name":"order_created","test_mode":true},
	"data":{"type":"orders","id":"42","attributes":{
		"order_number":42,"status":"paid","total_formatted":"$10.00","user_email":"a@b.com"}}}`

var _ = Describe("LemonSqueezyWebhookHandler", func() {
	var (
		router *gin.Engine
		buf    *bytes.Buffer
		buffer *paycontext.Buffer
		m      *metrics.Metrics
		cfg    webhook.LemonSqueezyWebhookConfig
	)

	build := func() {
		router = gin.New()
		h := webhook.NewLemonSqueezyWebhookHandler(buffer, mapper.NewLemonSqueezyMapper(), m, cfg)
		router.POST("/webhooks", h.HandleEvent)
	}

	post := func(body, sig, eventName string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if sig != "" {
			req.Header.Set("x-signature", sig)
		}
		if eventName != "" {
			req.Header.Set("x-event-name", eventName)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		buf = &bytes.Buffer{}
		slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))

		buffer = paycontext.NewBuffer(model.MaxContextEvents)
		m = metrics.New(prometheus.NewRegistry())
		cfg = webhook.LemonSqueezyWebhookConfig{Secret: secret, MaxBodyBytes: 1 << 20}
		build()
	})

	It("accepts a signed delivery and records the event", func() {
		w := post(orderCreated, signature.Sign([]byte(orderCreated), secret), "order_created")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(MatchJSON(`{"received":true,"event":"order_created"}`))
		Expect(w.Header().Get(webhook.DeliveryIDHeader)).ToNot(BeEmpty())

		snapshot := buffer.Snapshot()
		Expect(snapshot).To(HaveLen(1))
		Expect(snapshot[0].Message).To(Equal("order_created: Orders #42 - paid - $10.00 (a@b.com)"))
		Expect(*snapshot[0].OrderID).To(Equal(int64(42)))

		logStr := buf.String()
		Expect(logStr).To(ContainSubstring("webhook received"))
		Expect(logStr).To(ContainSubstring(`"event_name":"order_created"`))
		Expect(logStr).To(ContainSubstring(`"customer_email":"a@b.com"`))
		Expect(testutil.ToFloat64(m.EventsRecorded.WithLabelValues(metrics.SourceWebhook))).To(Equal(1.0))
	})

	It("rejects a bad signature without recording", func() {
		w := post(orderCreated, signature.Sign([]byte(orderCreated), "other"), "order_created")

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(w.Body.String()).To(MatchJSON(`{"error":"Invalid signature"}`))
		Expect(buffer.Len()).To(Equal(0))
		Expect(testutil.ToFloat64(m.WebhookRejected.WithLabelValues(metrics.ReasonSignature))).To(Equal(1.0))
	})

	It("rejects a missing signature when a secret is configured", func() {
		w := post(orderCreated, "", "order_created")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(buffer.Len()).To(Equal(0))
	})

	It("verifies the exact wire bytes", func() {
		var v any
		Expect(json.Unmarshal([]byte(orderCreated), &v)).To(Succeed())
		reencoded, _ := json.Marshal(v)

		w := post(orderCreated, signature.Sign(reencoded, secret), "order_created")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects malformed JSON with 400 and leaves the buffer unchanged", func() {
		buffer.Push(model.PaymentEvent{Message: "existing"})
		before := buffer.Len()
		body := `{"meta":{"event_name":`

		w := post(body, signature.Sign([]byte(body), secret), "order_created")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(MatchJSON(`{"error":"Invalid JSON payload"}`))
		Expect(buffer.Len()).To(Equal(before))
		Expect(testutil.ToFloat64(m.WebhookRejected.WithLabelValues(metrics.ReasonJSON))).To(Equal(1.0))
	})

	It("checks the signature before parsing", func() {
		w := post(`not json`, "deadbeef", "order_created")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	Context("without a configured secret", func() {
		BeforeEach(func() {
			cfg.Secret = ""
			build()
		})

		It("accepts any signature header", func() {
			for _, sig := range []string{"", "garbage", signature.Sign([]byte(orderCreated), "whatever")} {
				w := post(orderCreated, sig, "order_created")
				Expect(w.Code).To(Equal(http.StatusOK))
			}
			Expect(buffer.Len()).To(Equal(3))
		})

		It("still rejects malformed JSON", func() {
			w := post(`[`, "", "order_created")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(buffer.Len()).To(Equal(0))
		})

		It("echoes the payload event name when the header is missing", func() {
			w := post(orderCreated, "", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{"received":true,"event":"order_created"}`))
		})
	})

	Context("with a small body limit", func() {
		BeforeEach(func() {
			cfg.MaxBodyBytes = 64
			build()
		})

		It("rejects oversized bodies with 413", func() {
			w := post(orderCreated, signature.Sign([]byte(orderCreated), secret), "order_created")

			Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(w.Body.String()).To(MatchJSON(`{"error":"Payload too large"}`))
			Expect(buffer.Len()).To(Equal(0))
			Expect(testutil.ToFloat64(m.WebhookRejected.WithLabelValues(metrics.ReasonTooLarge))).To(Equal(1.0))
		})

		It("rejects oversized chunked bodies with 413", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(orderCreated))
			req.ContentLength = -1
			req.Header.Set("x-signature", signature.Sign([]byte(orderCreated), secret))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(buffer.Len()).To(Equal(0))
		})
	})
})
