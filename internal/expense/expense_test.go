package expense

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Category", func() {
	It("looks up names ignoring case", func() {
		c, ok := LookupCategory(" subscriptions & memberships ")
		Expect(ok).To(BeTrue())
		Expect(c).To(Equal(CategorySubscriptions))
	})

	It("does not look up partial names", func() {
		_, ok := LookupCategory("Meal")
		Expect(ok).To(BeFalse())
	})

	DescribeTable("ParseCategory",
		func(text string, want Category) {
			Expect(ParseCategory(text)).To(Equal(want))
		},
		Entry("exact", "Transportation", CategoryTransportation),
		Entry("lower case", "accommodation", CategoryAccommodation),
		Entry("hint", "Restaurant bill", CategoryMeals),
		Entry("taxi", "Taxi", CategoryTransportation),
		Entry("membership", "Gym membership", CategorySubscriptions),
		Entry("unknown", "Stationery", CategoryOther),
		Entry("empty", "", CategoryOther),
	)
})

var _ = Describe("ParseAmount", func() {
	DescribeTable("valid amounts",
		func(text string, cents int64) {
			got, err := ParseAmount(text)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(cents))
		},
		Entry("two decimals", "12.50", int64(1250)),
		Entry("one decimal", "12.5", int64(1250)),
		Entry("integer", "30", int64(3000)),
		Entry("decimal comma", "12,50", int64(1250)),
		Entry("thousands separator", "1,234.56", int64(123456)),
		Entry("european thousands separator", "1.234,50", int64(123450)),
		Entry("repeated commas", "1,234,567", int64(123456700)),
		Entry("repeated dots", "1.234.567", int64(123456700)),
		Entry("european grouping without decimals", "12.345.678,9", int64(1234567890)),
		Entry("rounds half away from zero", "0.125", int64(13)),
		Entry("zero", "0.00", int64(0)),
		Entry("surrounding spaces", " 7.05 ", int64(705)),
	)

	It("rejects negative amounts", func() {
		_, err := ParseAmount("-3.00")
		Expect(err).To(HaveOccurred())
	})

	It("rejects text", func() {
		_, err := ParseAmount("twelve")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("AmountFromFloat", func() {
	It("rounds to cents without float drift", func() {
		Expect(AmountFromFloat(0.1 + 0.2)).To(Equal(int64(30)))
		Expect(AmountFromFloat(19.99)).To(Equal(int64(1999)))
		Expect(AmountFromFloat(42.5)).To(Equal(int64(4250)))
	})
})

var _ = Describe("sanitizeFilename", func() {
	It("removes special characters", func() {
		Expect(sanitizeFilename("receipt (1)!.jpg")).To(Equal("receipt 1.jpg"))
	})

	It("drops directory components", func() {
		Expect(sanitizeFilename("../../etc/passwd")).To(Equal("passwd"))
	})

	It("truncates long names", func() {
		long := "PXL_20250110_123456789_with_a_very_long_camera_generated_suffix.jpg"
		got := sanitizeFilename(long)
		Expect(len(got)).To(Equal(50 + len(".jpg")))
	})

	It("uses a default for empty names", func() {
		Expect(sanitizeFilename("!!!.png")).To(Equal("receipt.png"))
	})

	It("lower-cases the extension", func() {
		Expect(sanitizeFilename("SCAN.PDF")).To(Equal("SCAN.pdf"))
	})
})
