package expense

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "files"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "id-1_1_receipt.jpg"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, []byte("test file content"))
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the name", func() {
				Expect(savedPath).To(Equal(filename))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, "files", filename)).To(BeAnExistingFile())
			})
		})

		When("the name escapes the directory", func() {
			BeforeEach(func() {
				filename = "../outside.jpg"
			})

			It("returns ErrInvalidPath", func() {
				Expect(err).To(MatchError(ErrInvalidPath))
				Expect(filepath.Join(tmpDir, "outside.jpg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("test.jpg", []byte("test file content"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the file data", func() {
				data, err := storage.Get("test.jpg")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("test file content"))
			})
		})

		When("file does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := storage.Get("nonexistent.jpg")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the name is a path", func() {
			It("returns ErrInvalidPath", func() {
				_, err := storage.Get("sub/dir.jpg")
				Expect(err).To(MatchError(ErrInvalidPath))
			})
		})
	})

	Describe("Delete", func() {
		When("file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("test.jpg", []byte("x"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should remove the file from disk", func() {
				Expect(storage.Delete("test.jpg")).To(Succeed())
				Expect(filepath.Join(tmpDir, "files", "test.jpg")).NotTo(BeAnExistingFile())
			})
		})

		When("file does not exist", func() {
			It("should return an error", func() {
				Expect(storage.Delete("nonexistent.jpg")).NotTo(Succeed())
			})
		})
	})
})
