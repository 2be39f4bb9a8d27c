package expense

import (
	"fmt"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-report/internal/settings"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newExpense := func(id, merchant string, amount int64) *Expense {
		return &Expense{
			ID:           id,
			Date:         "2025-01-10",
			MerchantName: merchant,
			Category:     CategoryMeals,
			Amount:       amount,
			CreatedAt:    time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC),
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("InsertExpense", func() {
		var (
			expense *Expense
			err     error
		)

		BeforeEach(func() {
			expense = newExpense("test-id", "CAFE X", 1250)
		})

		JustBeforeEach(func() {
			err = db.InsertExpense(expense, "INV001")
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("assigns a sequence number", func() {
			Expect(expense.Seq).To(Equal(uint64(1)))
		})

		It("should save the expense to the database", func() {
			saved, getErr := db.GetExpense("test-id")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved.MerchantName).To(Equal("CAFE X"))
			Expect(saved.Amount).To(Equal(int64(1250)))
			Expect(saved.CreatedAt.Equal(expense.CreatedAt)).To(BeTrue())
		})

		It("records the document number", func() {
			seen, seenErr := db.DocumentNumbers()
			Expect(seenErr).NotTo(HaveOccurred())
			Expect(seen).To(Equal(map[string]bool{"INV001": true}))
		})
	})

	Describe("pending uploads", func() {
		BeforeEach(func() {
			Expect(db.AddPending([]string{"a.jpg", "b.jpg"})).To(Succeed())
		})

		It("accepts a pending attachment once", func() {
			first := newExpense("first", "CAFE X", 1)
			first.Attachments = []Attachment{{Filename: "a.jpg"}}
			Expect(db.InsertExpense(first, "")).To(Succeed())

			again := newExpense("again", "CAFE X", 1)
			again.Attachments = []Attachment{{Filename: "a.jpg"}}
			Expect(db.InsertExpense(again, "")).To(MatchError(ErrInvalidExpense))
		})

		It("rejects an attachment that was never uploaded", func() {
			e := newExpense("x", "CAFE X", 1)
			e.Attachments = []Attachment{{Filename: "a.jpg"}, {Filename: "Report_0001.pdf"}}
			Expect(db.InsertExpense(e, "DOC-X")).To(MatchError(ErrInvalidExpense))

			_, err := db.GetExpense("x")
			Expect(err).To(MatchError(ErrNotFound))
			removed, err := db.RemovePending([]string{"a.jpg"})
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal([]string{"a.jpg"}))
		})

		It("removes only names that are pending", func() {
			removed, err := db.RemovePending([]string{"b.jpg", "Report_0001.pdf"})
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal([]string{"b.jpg"}))

			removed, err = db.RemovePending([]string{"b.jpg"})
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeEmpty())
		})
	})

	Describe("GetExpense", func() {
		It("returns ErrNotFound for unknown ids", func() {
			_, err := db.GetExpense("nonexistent")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListExpenses", func() {
		When("expenses exist", func() {
			BeforeEach(func() {
				// ids that sort differently from insertion order
				for i, id := range []string{"zulu", "alpha", "mike", "bravo"} {
					Expect(db.InsertExpense(newExpense(id, fmt.Sprintf("M%d", i), int64(i)), "")).To(Succeed())
				}
			})

			It("returns them in insertion order", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, 0, len(expenses))
				for _, e := range expenses {
					ids = append(ids, e.ID)
				}
				Expect(ids).To(Equal([]string{"zulu", "alpha", "mike", "bravo"}))
			})
		})

		When("no expenses exist", func() {
			It("should return an empty list", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(BeEmpty())
			})
		})
	})

	Describe("DeleteExpense", func() {
		BeforeEach(func() {
			Expect(db.InsertExpense(newExpense("a", "CAFE X", 1), "DOC-A")).To(Succeed())
			Expect(db.InsertExpense(newExpense("b", "TAXI Y", 2), "DOC-B")).To(Succeed())
		})

		It("removes the expense and its document number", func() {
			Expect(db.DeleteExpense("a")).To(Succeed())

			_, err := db.GetExpense("a")
			Expect(err).To(MatchError(ErrNotFound))
			seen, err := db.DocumentNumbers()
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal(map[string]bool{"DOC-B": true}))
		})
	})

	Describe("ClearExpenses", func() {
		It("removes every expense and document number", func() {
			Expect(db.InsertExpense(newExpense("a", "CAFE X", 1), "DOC-A")).To(Succeed())
			Expect(db.ClearExpenses()).To(Succeed())

			expenses, err := db.ListExpenses()
			Expect(err).NotTo(HaveOccurred())
			Expect(expenses).To(BeEmpty())
			seen, err := db.DocumentNumbers()
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeEmpty())
		})

		It("keeps accepting expenses afterwards", func() {
			Expect(db.ClearExpenses()).To(Succeed())
			Expect(db.InsertExpense(newExpense("c", "CAFE X", 1), "")).To(Succeed())
			expenses, err := db.ListExpenses()
			Expect(err).NotTo(HaveOccurred())
			Expect(expenses).To(HaveLen(1))
		})
	})

	Describe("reports", func() {
		BeforeEach(func() {
			Expect(db.SaveReport(&ReportRecord{ID: "0002", Number: 2, Total: 100})).To(Succeed())
			Expect(db.SaveReport(&ReportRecord{ID: "0001", Number: 1, Total: 4250, ExpenseIDs: []string{"a", "b"}})).To(Succeed())
		})

		It("retrieves a report by id", func() {
			r, err := db.GetReport("0001")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Total).To(Equal(int64(4250)))
			Expect(r.ExpenseIDs).To(Equal([]string{"a", "b"}))
		})

		It("lists reports by number", func() {
			reports, err := db.ListReports()
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(2))
			Expect(reports[0].ID).To(Equal("0001"))
			Expect(reports[1].ID).To(Equal("0002"))
		})

		It("returns ErrNotFound for unknown reports", func() {
			_, err := db.GetReport("0099")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Handle", func() {
		It("lets the settings repository share the file", func() {
			repo, err := settings.NewBoltRepository(db.Handle())
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Set(settings.KeyClaimantName, "Maria")).To(Succeed())
			Expect(repo.Get(settings.KeyClaimantName)).To(Equal("Maria"))
		})
	})

	Describe("reopening", func() {
		It("keeps expenses and continues the sequence", func() {
			Expect(db.InsertExpense(newExpense("a", "CAFE X", 1), "")).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			next := newExpense("b", "TAXI Y", 2)
			Expect(db.InsertExpense(next, "")).To(Succeed())
			Expect(next.Seq).To(Equal(uint64(2)))
		})
	})
})
