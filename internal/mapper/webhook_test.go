package mapper_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/mapper"
	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/internal/model"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMapper() *mapper.LemonSqueezyMapper {
	return mapper.NewLemonSqueezyMapper(mapper.WithClock(func() time.Time { return fixedNow }))
}

var _ = Describe("LemonSqueezyMapper", func() {
	var m mapper.PaymentEventMapper

	BeforeEach(func() {
		m = newMapper()
	})

	decode := func(raw string) mapper.WebhookPayload {
		payload, err := mapper.DecodeWebhook([]byte(raw))
		Expect(err).ToNot(HaveOccurred())
		return payload
	}

	Describe("DecodeWebhook", func() {
		It("rejects malformed JSON", func() {
			_, err := mapper.DecodeWebhook([]byte(`{"meta":`))
			Expect(errors.Is(err, mapper.ErrInvalidPayload)).To(BeTrue())
		})

		It("rejects non-object bodies", func() {
			for _, raw := range []string{``, `[]`, `"order"`, `42`, `null`} {
				_, err := mapper.DecodeWebhook([]byte(raw))
				Expect(errors.Is(err, mapper.ErrInvalidPayload)).To(BeTrue(), raw)
			}
		})

		It("rejects trailing data", func() {
			_, err := mapper.DecodeWebhook([]byte(`{"meta":{}} {}`))
			Expect(errors.Is(err, mapper.ErrInvalidPayload)).To(BeTrue())
		})

		It("keeps numeric attributes exact", func() {
			payload := decode(`{"data":{"attributes":{"order_id":9007199254740993}}}`)
			event := m.FromWebhook("order_created", payload)
			Expect(*event.OrderID).To(Equal(int64(9007199254740993)))
		})
	})

	Describe("FromWebhook", func() {
		It("builds the full summary message", func() {
			payload := decode(`{
				"meta":{"event_name":"order_created"},
				"data":{"type":"order","id":"42","attributes":{
					"order_id":42,"status":"Paid","total_formatted":"$10.00","user_email":"a@b.com"}}}`)

			event := m.FromWebhook("order_created", payload)

			Expect(event.Message).To(Equal("order_created: Order #42 - paid - $10.00 (a@b.com)"))
			Expect(*event.OrderID).To(Equal(int64(42)))
			Expect(*event.Status).To(Equal("paid"))
			Expect(*event.Amount).To(Equal("$10.00"))
			Expect(*event.CustomerEmail).To(Equal("a@b.com"))
			Expect(event.Type).To(Equal(model.EventTypeWebhook))
			Expect(event.Timestamp).To(Equal(fixedNow))
		})

		It("omits absent fragments while keeping their order", func() {
			payload := decode(`{"meta":{"event_name":"subscription_updated"},
				"data":{"type":"subscriptions","id":"9","attributes":{"user_email":"x@y.io"}}}`)

			event := m.FromWebhook("subscription_updated", payload)

			Expect(event.Message).To(Equal("subscription_updated: Subscriptions #9 (x@y.io)"))
			Expect(event.Status).To(BeNil())
			Expect(event.Amount).To(BeNil())
		})

		It("falls back through order_number and the resource id", func() {
			byNumber := decode(`{"data":{"type":"orders","id":"5","attributes":{"order_number":1005}}}`)
			Expect(*m.FromWebhook("order_created", byNumber).OrderID).To(Equal(int64(1005)))

			byID := decode(`{"data":{"type":"orders","id":"5","attributes":{}}}`)
			Expect(*m.FromWebhook("order_created", byID).OrderID).To(Equal(int64(5)))
		})

		It("treats zero and empty order ids as absent for fallback", func() {
			payload := decode(`{"data":{"type":"orders","id":"8","attributes":{"order_id":0,"order_number":""}}}`)
			Expect(*m.FromWebhook("order_created", payload).OrderID).To(Equal(int64(8)))
		})

		It("leaves the order id absent when the chosen value does not parse", func() {
			payload := decode(`{"data":{"type":"orders","id":"8","attributes":{"order_id":"abc"}}}`)
			Expect(m.FromWebhook("order_created", payload).OrderID).To(BeNil())
		})

		It("parses the integer prefix of string ids", func() {
			payload := decode(`{"data":{"type":"orders","attributes":{"order_id":"77-A"}}}`)
			Expect(*m.FromWebhook("order_created", payload).OrderID).To(Equal(int64(77)))
		})

		It("uses alternate attribute names", func() {
			payload := decode(`{"meta":{"event_name":"order_refunded"},
				"data":{"type":"orders","id":"3","attributes":{
					"email":"c@d.com","status_formatted":"Refunded","total":1999}}}`)

			event := m.FromWebhook("order_refunded", payload)

			Expect(*event.CustomerEmail).To(Equal("c@d.com"))
			Expect(*event.Status).To(Equal("refunded"))
			Expect(*event.Amount).To(Equal("1999"))
			Expect(event.Message).To(Equal("order_refunded: Orders #3 - refunded - 1999 (c@d.com)"))
		})

		It("falls back to the header event name", func() {
			payload := decode(`{"data":{"type":"license_keys","id":"1","attributes":{}}}`)
			Expect(m.FromWebhook("license_key_created", payload).Message).
				To(Equal("license_key_created: License Keys #1"))
		})

		It("never fails on an empty payload", func() {
			event := m.FromWebhook("", decode(`{}`))
			Expect(event.Message).To(Equal("unknown_event: Resource"))
			Expect(event.OrderID).To(BeNil())
		})
	})

	DescribeTable("ResourceTypeLabel",
		func(in, want string) {
			Expect(mapper.ResourceTypeLabel(in)).To(Equal(want))
		},
		Entry("single word", "order", "Order"),
		Entry("snake case", "subscription_invoices", "Subscription Invoices"),
		Entry("already cased", "Orders", "Orders"),
		Entry("empty", "", "Resource"),
	)
})
