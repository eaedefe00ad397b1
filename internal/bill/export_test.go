package bill

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("ExportXLSX", func() {
	It("should write one row per item and a summary", func() {
		resp := newSuccess([]PageLineItems{
			{PageNo: "1", PageType: "Bill Detail", BillItems: []LineItem{
				{Name: "Paracetamol", Quantity: 1, Rate: 10, Amount: 10},
				{Name: "Syringe", Quantity: 2, Rate: 5, Amount: 10},
			}},
			{PageNo: "2", PageType: "Pharmacy", BillItems: []LineItem{}},
		}, TokenUsage{TotalTokens: 30, InputTokens: 20, OutputTokens: 10})

		data, err := ExportXLSX(resp)
		Expect(err).NotTo(HaveOccurred())

		f, err := excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		rows, err := f.GetRows("Line Items")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0]).To(Equal([]string{"Page", "Page Type", "Item", "Quantity", "Rate", "Amount"}))
		Expect(rows[2][2]).To(Equal("Syringe"))
		Expect(rows[2][3]).To(Equal("2"))

		summary, err := f.GetRows("Summary")
		Expect(err).NotTo(HaveOccurred())
		Expect(summary[1]).To(Equal([]string{"Items", "2"}))
		Expect(summary[2]).To(Equal([]string{"Total Amount", "20"}))
	})

	It("should refuse a failed extraction", func() {
		_, err := ExportXLSX(newFailure("boom"))
		Expect(err).To(HaveOccurred())
	})
})
