package app_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/core/config"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/app"
)

const orderCreated = `{"meta":{"event_name":"order_created"},"data":{"type":"orders","id":"5","attributes":{"status":"paid"}}}`

func waitHealthy(a *app.App) {
	Eventually(func() (int, error) {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", a.Listener.Port()))
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		return resp.StatusCode, nil
	}).Should(Equal(http.StatusOK))
}

func postWebhook(a *app.App, forwardedFor string) int {
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://127.0.0.1:%d/webhooks", a.Listener.Port()), strings.NewReader(orderCreated))
	Expect(err).ToNot(HaveOccurred())
	req.Header.Set("X-Event-Name", "order_created")
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).ToNot(HaveOccurred())
	resp.Body.Close()
	return resp.StatusCode
}

func testConfig() config.Config {
	return config.Config{
		Env:         "test",
		AdminAPIKey: "admin",
		Webhook: config.WebhookConfig{
			Port:         0,
			MaxBodyBytes: 1 << 20,
		},
		OTel: config.OTelConfig{ServiceName: "lemonsqueezy-webhook-listener"},
	}
}

var _ = Describe("App", func() {
	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
	})

	run := func(a *app.App) (context.CancelFunc, chan error) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- a.Run(ctx) }()
		return cancel, done
	}

	It("records webhook deliveries and exposes them to readers", func() {
		cfg := testConfig()
		cfg.EnableResources = true

		a, err := app.New(context.Background(), cfg, app.Options{ServeHTTP: true})
		Expect(err).ToNot(HaveOccurred())
		defer a.Close()

		cancel, done := run(a)
		base := fmt.Sprintf("http://127.0.0.1:%d", a.Listener.Port())

		Eventually(func() (int, error) {
			resp, err := http.Get(base + "/health")
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			return resp.StatusCode, nil
		}).Should(Equal(http.StatusOK))

		body := `{"meta":{"event_name":"order_refunded"},"data":{"type":"orders","id":"42","attributes":{"status":"refunded","total_formatted":"$10.00"}}}`
		req, err := http.NewRequest(http.MethodPost, base+"/webhooks", strings.NewReader(body))
		Expect(err).ToNot(HaveOccurred())
		req.Header.Set("X-Event-Name", "order_refunded")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).ToNot(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		events := a.Reader.Query("refunded", 0)
		Expect(events).To(HaveLen(1))
		Expect(*events[0].OrderID).To(Equal(int64(42)))

		req, err = http.NewRequest(http.MethodGet, base+"/context", nil)
		Expect(err).ToNot(HaveOccurred())
		req.Header.Set("Authorization", "Bearer admin")
		resp, err = http.DefaultClient.Do(req)
		Expect(err).ToNot(HaveOccurred())
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(payload)).To(ContainSubstring(`"failedPayments":1`))

		resp, err = http.Get(base + "/metrics")
		Expect(err).ToNot(HaveOccurred())
		payload, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(string(payload)).To(ContainSubstring(`paywatch_events_recorded_total{source="webhook"} 1`))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})

	It("does not mount the context surface without resources", func() {
		a, err := app.New(context.Background(), testConfig(), app.Options{ServeHTTP: true})
		Expect(err).ToNot(HaveOccurred())
		defer a.Close()

		cancel, done := run(a)
		defer func() {
			cancel()
			Eventually(done, 5*time.Second).Should(Receive())
		}()

		Eventually(func() (int, error) {
			req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/context", a.Listener.Port()), nil)
			req.Header.Set("X-Admin-Key", "admin")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			return resp.StatusCode, nil
		}).Should(Equal(http.StatusNotFound))
	})

	It("runs without a listener and stops on cancel", func() {
		a, err := app.New(context.Background(), testConfig(), app.Options{})
		Expect(err).ToNot(HaveOccurred())
		Expect(a.Listener).To(BeNil())

		cancel, done := run(a)
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("feeds the buffer from the log tail watcher", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "webhooks.log")
		Expect(os.WriteFile(path, []byte("boot\n"), 0o644)).To(Succeed())

		cfg := testConfig()
		cfg.EnableResources = true
		cfg.Webhook.LogPath = path

		a, err := app.New(context.Background(), cfg, app.Options{})
		Expect(err).ToNot(HaveOccurred())

		cancel, done := run(a)
		defer func() {
			cancel()
			Eventually(done, 5*time.Second).Should(Receive())
		}()

		// Append until the watcher has observed a write.
		Eventually(func() (int, error) {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return 0, err
			}
			defer f.Close()
			if _, err := f.WriteString("order_99 payment failed for jo@x.com\n"); err != nil {
				return 0, err
			}
			return a.Buffer.Len(), nil
		}, 5*time.Second, 100*time.Millisecond).Should(BeNumerically(">=", 1))
		event := a.Reader.Query("", 1)[0]
		Expect(*event.OrderID).To(Equal(int64(99)))
	})

	It("fails fast when the pipeline is unreachable", func() {
		cfg := testConfig()
		cfg.Pipeline.RedisURL = "not-a-redis-url"

		_, err := app.New(context.Background(), cfg, app.Options{})
		Expect(err).To(MatchError(ContainSubstring("parsing redis url")))
	})

	It("keeps serving webhooks when the log path cannot be watched", func() {
		cfg := testConfig()
		cfg.EnableResources = true
		cfg.Webhook.LogPath = filepath.Join(GinkgoT().TempDir(), "missing", "webhooks.log")

		a, err := app.New(context.Background(), cfg, app.Options{ServeHTTP: true})
		Expect(err).ToNot(HaveOccurred())
		defer a.Close()

		cancel, done := run(a)
		waitHealthy(a)

		Consistently(done, 300*time.Millisecond).ShouldNot(Receive())
		Expect(postWebhook(a, "")).To(Equal(http.StatusOK))
		Expect(a.Buffer.Len()).To(Equal(1))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})

	Describe("webhook rate limiting", func() {
		limited := func() config.Config {
			cfg := testConfig()
			cfg.Webhook.RateLimit = 0.001
			cfg.Webhook.RateBurst = 1
			return cfg
		}

		It("ignores X-Forwarded-For from untrusted peers", func() {
			a, err := app.New(context.Background(), limited(), app.Options{ServeHTTP: true})
			Expect(err).ToNot(HaveOccurred())
			defer a.Close()

			cancel, done := run(a)
			defer func() {
				cancel()
				Eventually(done, 5*time.Second).Should(Receive())
			}()
			waitHealthy(a)

			accepted := 0
			for i := 1; i <= 5; i++ {
				if postWebhook(a, fmt.Sprintf("203.0.113.%d", i)) == http.StatusOK {
					accepted++
				}
			}
			Expect(accepted).To(Equal(1))
		})

		It("buckets by forwarded client when the peer is a trusted proxy", func() {
			cfg := limited()
			cfg.Webhook.TrustedProxies = []string{"127.0.0.1"}

			a, err := app.New(context.Background(), cfg, app.Options{ServeHTTP: true})
			Expect(err).ToNot(HaveOccurred())
			defer a.Close()

			cancel, done := run(a)
			defer func() {
				cancel()
				Eventually(done, 5*time.Second).Should(Receive())
			}()
			waitHealthy(a)

			Expect(postWebhook(a, "203.0.113.1")).To(Equal(http.StatusOK))
			Expect(postWebhook(a, "203.0.113.2")).To(Equal(http.StatusOK))
			Expect(postWebhook(a, "203.0.113.1")).To(Equal(http.StatusTooManyRequests))
		})

		It("rejects an invalid trusted proxy", func() {
			cfg := limited()
			cfg.Webhook.TrustedProxies = []string{"not-an-ip"}

			_, err := app.New(context.Background(), cfg, app.Options{ServeHTTP: true})
			Expect(err).To(MatchError(ContainSubstring("setting trusted proxies")))
		})
	})

	It("stops the poller and watcher on shutdown", func() {
		dir := GinkgoT().TempDir()
		cfg := testConfig()
		cfg.EnableResources = true
		cfg.Webhook.LogPath = filepath.Join(dir, "webhooks.log")
		cfg.Polling = config.PollingConfig{Enabled: true, IntervalMinutes: 60, PageSize: 5}
		cfg.LemonSqueezy = config.LemonSqueezyConfig{APIKey: "key", BaseURL: "http://127.0.0.1:1"}

		a, err := app.New(context.Background(), cfg, app.Options{})
		Expect(err).ToNot(HaveOccurred())

		cancel, done := run(a)
		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})
})
