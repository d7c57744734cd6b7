package index_test

import (
	. "github.com/bakerykit/bakery/index"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("func NewMetrics()", func() {
	It("registers the metrics with the registerer", func() {
		r := prometheus.NewRegistry()

		m, err := NewMetrics(r)
		Expect(err).ShouldNot(HaveOccurred())

		m.Created.Inc()

		n, err := testutil.GatherAndCount(r, "bakery_index_instances_created_total")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(testutil.ToFloat64(m.Created)).To(Equal(1.0))
	})

	It("returns an error if the metrics are already registered", func() {
		r := prometheus.NewRegistry()

		_, err := NewMetrics(r)
		Expect(err).ShouldNot(HaveOccurred())

		_, err = NewMetrics(r)
		Expect(err).To(HaveOccurred())
	})
})
