package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func pngBytes(w, h int) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage(w, h))).To(Succeed())
	return buf.Bytes()
}

func jpegBytes(w, h int) []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(w, h), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("conversion", func() {
	Describe("isHEICFormat", func() {
		It("detects the ftyp heic brand", func() {
			data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
			Expect(isHEICFormat(data)).To(BeTrue())
		})

		It("rejects short input", func() {
			Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
		})

		It("rejects PNG data", func() {
			Expect(isHEICFormat(pngBytes(4, 4))).To(BeFalse())
		})
	})

	Describe("isHEICMimeType", func() {
		It("matches heic and heif types", func() {
			Expect(isHEICMimeType("image/heic")).To(BeTrue())
			Expect(isHEICMimeType(" IMAGE/HEIF ")).To(BeTrue())
			Expect(isHEICMimeType("image/jpeg")).To(BeFalse())
		})
	})

	Describe("normalizeMimeType", func() {
		It("lowercases and drops parameters", func() {
			Expect(normalizeMimeType(" Image/JPEG; charset=binary")).To(Equal("image/jpeg"))
		})
	})

	Describe("preparePages", func() {
		It("passes PNG through unchanged", func() {
			data := pngBytes(8, 8)
			out, err := preparePages([]Page{{Data: data, ContentType: "image/png"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0]).To(Equal(data))
		})

		It("converts JPEG to PNG", func() {
			out, err := preparePages([]Page{{Data: jpegBytes(8, 8), ContentType: "image/jpeg"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			_, format, err := image.DecodeConfig(bytes.NewReader(out[0]))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})

		It("defaults an empty content type to JPEG", func() {
			out, err := preparePages([]Page{{Data: jpegBytes(8, 8)}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
		})

		It("fails on undecodable data", func() {
			_, err := preparePages([]Page{{Data: []byte("not an image"), ContentType: "image/jpeg"}})
			Expect(err).To(HaveOccurred())
		})

		It("caps the number of pages", func() {
			pages := make([]Page, 0, maxScanPages+2)
			for i := 0; i < maxScanPages+2; i++ {
				pages = append(pages, Page{Data: pngBytes(4, 4), ContentType: "image/png"})
			}
			out, err := preparePages(pages)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(maxScanPages))
		})

		It("fails with no pages", func() {
			_, err := preparePages(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("DecodePages", func() {
		It("decodes a PNG into one page", func() {
			imgs, err := DecodePages(pngBytes(10, 20), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(HaveLen(1))
			Expect(imgs[0].Bounds().Dx()).To(Equal(10))
			Expect(imgs[0].Bounds().Dy()).To(Equal(20))
		})

		It("decodes a JPEG with a wrong content type by sniffing", func() {
			imgs, err := DecodePages(jpegBytes(6, 6), "application/octet-stream")
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(HaveLen(1))
		})

		It("fails on corrupt data", func() {
			_, err := DecodePages([]byte{0x89, 'P', 'N', 'G', 0, 1, 2}, "image/png")
			Expect(err).To(HaveOccurred())
		})

		It("fails on a corrupt PDF", func() {
			_, err := DecodePages([]byte("%PDF-1.4 garbage"), "application/pdf")
			Expect(err).To(HaveOccurred())
		})
	})
})
