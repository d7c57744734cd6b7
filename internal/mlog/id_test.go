package mlog_test

import (
	"strings"

	. "github.com/bakerykit/bakery/internal/mlog"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func FormatID()", func() {
	It("returns the first 8 characters of a UUID", func() {
		id := uuid.NewString()
		Expect(FormatID(id)).To(Equal(id[:8]))
	})

	It("returns the first 8 characters of a hex-encoded SHA-256 hash", func() {
		id := strings.Repeat("ab", 32)
		Expect(FormatID(id)).To(Equal("abababab"))
	})

	It("returns the entire string otherwise", func() {
		Expect(FormatID("order-42")).To(Equal("order-42"))
	})
})
