package lemonsqueezy_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/core/config"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/lemonsqueezy"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		lastReq  *http.Request
		client   *lemonsqueezy.Client
		storeID  string
		response string
		status   int
	)

	BeforeEach(func() {
		storeID = ""
		status = http.StatusOK
		response = `{"data":[
			{"type":"orders","id":"7","attributes":{"order_number":1007,"user_email":"a@b.com","status":"failed","status_formatted":"Failed","total":1000,"total_formatted":"$10.00","created_at":"2024-05-01T10:00:00.000000Z"}},
			{"type":"orders","id":"8","attributes":{"status":"paid","total_formatted":"$5.00"}}
		]}`
		handler = func(w http.ResponseWriter, r *http.Request) {
			lastReq = r.Clone(context.Background())
			w.Header().Set("Content-Type", "application/vnd.api+json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(response))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *lemonsqueezy.Client {
		return lemonsqueezy.NewClient(config.LemonSqueezyConfig{
			APIKey:  "test-key",
			BaseURL: server.URL + "/v1/",
			StoreID: storeID,
			Timeout: 2 * time.Second,
		})
	}

	It("lists orders with JSON:API paging and auth", func() {
		client = newClient()

		orders, err := client.ListOrders(context.Background(), lemonsqueezy.ListOrdersParams{Page: 1, Size: 5})
		Expect(err).ToNot(HaveOccurred())
		Expect(orders).To(HaveLen(2))

		Expect(orders[0].ID).To(Equal("7"))
		Expect(orders[0].Attributes.Status).To(Equal("failed"))
		Expect(orders[0].Attributes.UserEmail).To(Equal("a@b.com"))
		Expect(orders[0].Attributes.TotalFormatted).To(Equal("$10.00"))
		Expect(orders[0].Attributes.OrderNumber).To(Equal(int64(1007)))

		Expect(lastReq.URL.Path).To(Equal("/v1/orders"))
		Expect(lastReq.Header.Get("Authorization")).To(Equal("Bearer test-key"))
		Expect(lastReq.Header.Get("Accept")).To(Equal("application/vnd.api+json"))

		q, err := url.ParseQuery(lastReq.URL.RawQuery)
		Expect(err).ToNot(HaveOccurred())
		Expect(q.Get("page[number]")).To(Equal("1"))
		Expect(q.Get("page[size]")).To(Equal("5"))
		Expect(q.Has("filter[store_id]")).To(BeFalse())
		Expect(q).To(HaveLen(3))
	})

	It("scopes the query to the configured store", func() {
		storeID = "42"
		client = newClient()

		_, err := client.ListOrders(context.Background(), lemonsqueezy.ListOrdersParams{Page: 1, Size: 5})
		Expect(err).ToNot(HaveOccurred())

		q, _ := url.ParseQuery(lastReq.URL.RawQuery)
		Expect(q.Get("filter[store_id]")).To(Equal("42"))
	})

	It("returns an empty slice for an empty page", func() {
		response = `{"data":[]}`
		client = newClient()

		orders, err := client.ListOrders(context.Background(), lemonsqueezy.ListOrdersParams{Page: 1, Size: 5})
		Expect(err).ToNot(HaveOccurred())
		Expect(orders).To(BeEmpty())
	})

	It("surfaces API errors", func() {
		status = http.StatusUnauthorized
		response = `{"errors":[{"status":"401","title":"Unauthenticated","detail":"bad key"}]}`
		client = newClient()

		_, err := client.ListOrders(context.Background(), lemonsqueezy.ListOrdersParams{Page: 1, Size: 5})
		Expect(err).To(HaveOccurred())

		var apiErr *lemonsqueezy.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(apiErr.Title).To(Equal("Unauthenticated"))
		Expect(apiErr.Detail).To(Equal("bad key"))
	})

	It("falls back to the HTTP status text when the error body has no detail", func() {
		status = http.StatusBadGateway
		response = `{}`
		client = newClient()

		_, err := client.ListOrders(context.Background(), lemonsqueezy.ListOrdersParams{Page: 1, Size: 5})

		var apiErr *lemonsqueezy.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Title).To(Equal("Bad Gateway"))
	})

	It("honours context cancellation", func() {
		client = newClient()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.ListOrders(ctx, lemonsqueezy.ListOrdersParams{Page: 1, Size: 5})
		Expect(err).To(HaveOccurred())
	})
})
