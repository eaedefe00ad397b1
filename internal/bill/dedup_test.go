package bill

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Deduplicator", func() {
	var dedup *Deduplicator

	BeforeEach(func() {
		dedup = NewDeduplicator(DefaultFuzzyThreshold, DefaultAmountDiffRatio)
	})

	Describe("IsDuplicate", func() {
		It("should ignore case", func() {
			Expect(dedup.IsDuplicate(
				LineItem{Name: "Consultation", Amount: 350},
				LineItem{Name: "CONSULTATION", Amount: 350},
			)).To(BeTrue())
		})

		It("should match near-identical names", func() {
			Expect(dedup.IsDuplicate(
				LineItem{Name: "Consultation", Amount: 350},
				LineItem{Name: "Consultaton", Amount: 350},
			)).To(BeTrue())
		})

		It("should match amounts within 5 percent", func() {
			Expect(dedup.IsDuplicate(
				LineItem{Name: "Room rent", Amount: 1000},
				LineItem{Name: "Room rent", Amount: 1040},
			)).To(BeTrue())
		})

		It("should match a name extended by a short suffix", func() {
			Expect(dedup.IsDuplicate(
				LineItem{Name: "Consultation", Amount: 350},
				LineItem{Name: "Consultation Fee", Amount: 350},
			)).To(BeTrue())
		})

		It("should not match amounts 5 percent apart or more", func() {
			Expect(dedup.IsDuplicate(
				LineItem{Name: "Room rent", Amount: 1000},
				LineItem{Name: "Room rent", Amount: 1060},
			)).To(BeFalse())
		})

		It("should not match different names with equal amounts", func() {
			Expect(dedup.IsDuplicate(
				LineItem{Name: "Paracetamol", Amount: 10},
				LineItem{Name: "Syringe", Amount: 10},
			)).To(BeFalse())
		})

		When("an amount is zero", func() {
			It("should match only another zero", func() {
				Expect(dedup.IsDuplicate(LineItem{Name: "Free sample", Amount: 0}, LineItem{Name: "Free sample", Amount: 0})).To(BeTrue())
				Expect(dedup.IsDuplicate(LineItem{Name: "Free sample", Amount: 0}, LineItem{Name: "Free sample", Amount: 0.01})).To(BeFalse())
			})
		})
	})

	Describe("Similarity", func() {
		It("should be 1 for equal names after case folding", func() {
			Expect(dedup.Similarity("École dentaire", "ÉCOLE DENTAIRE")).To(Equal(1.0))
		})

		It("should count a substitution as a deletion plus an insertion", func() {
			Expect(dedup.Similarity("Consultation", "Consultation Fee")).To(BeNumerically("~", 24.0/28, 1e-9))
			Expect(dedup.Similarity("Syringe 5ml", "Syringe")).To(BeNumerically("~", 14.0/18, 1e-9))
			Expect(dedup.Similarity("abc", "abd")).To(BeNumerically("~", 4.0/6, 1e-9))
		})

		It("should be low against an empty name", func() {
			Expect(dedup.Similarity("Bed", "")).To(BeNumerically("<", 0.85))
		})
	})

	Describe("Deduplicate", func() {
		var input []PageLineItems

		BeforeEach(func() {
			input = []PageLineItems{
				{PageNo: "1", PageType: "Bill Detail", BillItems: []LineItem{
					{Name: "Consultation", Quantity: 1, Rate: 350, Amount: 350},
					{Name: "X-Ray", Quantity: 1, Rate: 800, Amount: 800},
				}},
				{PageNo: "2", PageType: "Bill Detail", BillItems: []LineItem{
					{Name: "consultation", Quantity: 1, Rate: 350, Amount: 351},
					{Name: "Blood test", Quantity: 1, Rate: 400, Amount: 400},
				}},
				{PageNo: "3", PageType: "Summary", BillItems: []LineItem{
					{Name: "X-ray", Quantity: 1, Rate: 800, Amount: 800},
				}},
			}
		})

		It("should keep the first occurrence in page order", func() {
			out := dedup.Deduplicate(input)
			Expect(out[0].BillItems).To(HaveLen(2))
			Expect(out[1].BillItems).To(Equal([]LineItem{{Name: "Blood test", Quantity: 1, Rate: 400, Amount: 400}}))
		})

		It("should keep pages whose items were all removed", func() {
			out := dedup.Deduplicate(input)
			Expect(out).To(HaveLen(3))
			Expect(out[2].PageNo).To(Equal("3"))
			Expect(out[2].PageType).To(Equal("Summary"))
			Expect(out[2].BillItems).To(BeEmpty())
			Expect(out[2].BillItems).NotTo(BeNil())
		})

		It("should be idempotent", func() {
			once := dedup.Deduplicate(input)
			Expect(dedup.Deduplicate(once)).To(Equal(once))
		})

		It("should not modify its input", func() {
			_ = dedup.Deduplicate(input)
			Expect(input[2].BillItems).To(HaveLen(1))
		})

		It("should remove duplicates within a page", func() {
			out := dedup.Deduplicate([]PageLineItems{{PageNo: "1", BillItems: []LineItem{
				{Name: "Syringe", Amount: 10},
				{Name: "Syringe", Amount: 10},
			}}})
			Expect(out[0].BillItems).To(HaveLen(1))
		})
	})
})
