package grpcx_test

import (
	"errors"

	. "github.com/bakerykit/bakery/internal/x/grpcx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
)

var _ = Describe("func Errorf()", func() {
	It("attaches an ErrorInfo detail that can be read back", func() {
		err := Errorf(
			codes.NotFound,
			"UNKNOWN_INSTANCE",
			map[string]string{"instance_id": "<instance>"},
			"instance %s does not exist",
			"<instance>",
		)

		s, info, ok := ErrorInfo(err)
		Expect(ok).To(BeTrue())
		Expect(s.Code()).To(Equal(codes.NotFound))
		Expect(s.Message()).To(Equal("instance <instance> does not exist"))
		Expect(info.GetReason()).To(Equal("UNKNOWN_INSTANCE"))
		Expect(info.GetDomain()).To(Equal(ErrorDomain))
		Expect(info.GetMetadata()).To(HaveKeyWithValue("instance_id", "<instance>"))
	})
})

var _ = Describe("func ErrorInfo()", func() {
	It("returns false for errors that are not gRPC status errors", func() {
		_, _, ok := ErrorInfo(errors.New("<error>"))
		Expect(ok).To(BeFalse())
	})
})
