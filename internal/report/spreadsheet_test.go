package report

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("WriteSpreadsheet", func() {
	var (
		input Input
		book  *excelize.File
	)

	BeforeEach(func() {
		input = Input{Number: 3, Lines: sampleLines(), Header: sampleHeader()}
		input.Lines[0].DocumentNumber = "INV-001"
	})

	JustBeforeEach(func() {
		data, err := WriteSpreadsheet(input)
		Expect(err).NotTo(HaveOccurred())
		book, err = excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if book != nil {
			book.Close()
		}
	})

	cell := func(sheet, axis string) string {
		v, err := book.GetCellValue(sheet, axis)
		Expect(err).NotTo(HaveOccurred())
		return v
	}

	It("has the expenses and breakdown sheets", func() {
		Expect(book.GetSheetList()).To(Equal([]string{"Expenses", "Breakdown"}))
	})

	It("writes the report id and transliterated claimant", func() {
		Expect(cell("Expenses", "B1")).To(Equal("Report 0003"))
		Expect(cell("Expenses", "B2")).To(Equal("GIORGOS PAPADOPOYLOS"))
	})

	It("writes one row per line in input order", func() {
		Expect(cell("Expenses", "B6")).To(Equal("CAFE X"))
		Expect(cell("Expenses", "D6")).To(Equal("INV-001"))
		Expect(cell("Expenses", "E6")).To(Equal("12.50"))
		Expect(cell("Expenses", "B7")).To(Equal("TAXI Y"))
		Expect(cell("Expenses", "C7")).To(Equal("TRANSPORTATION"))
	})

	It("writes the grand total after the last line", func() {
		Expect(cell("Expenses", "A8")).To(Equal("GRAND TOTAL"))
		Expect(cell("Expenses", "E8")).To(Equal("42.50"))
	})

	It("writes the breakdown", func() {
		Expect(cell("Breakdown", "A2")).To(Equal("MEALS"))
		Expect(cell("Breakdown", "A3")).To(Equal("TRANSPORTATION"))
		Expect(cell("Breakdown", "B3")).To(Equal("30"))
	})

	When("there are no lines", func() {
		BeforeEach(func() {
			input.Lines = nil
		})

		It("still writes a zero total", func() {
			Expect(cell("Expenses", "A6")).To(Equal("GRAND TOTAL"))
			Expect(cell("Expenses", "E6")).To(Equal("0.00"))
		})
	})
})
