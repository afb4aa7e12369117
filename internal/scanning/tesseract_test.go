package scanning

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewTesseractExtractor", func() {
	When("the binary cannot be resolved", func() {
		It("fails at construction", func() {
			_, err := NewTesseractExtractor("definitely-not-a-real-ocr-binary", "eng")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("resolving tesseract binary"))
		})
	})
})

var _ = Describe("TesseractExtractor", func() {
	Describe("ExtractText", func() {
		When("the image file does not exist", func() {
			It("returns an extraction error without running the engine", func() {
				// "echo" stands in for the binary; it is never invoked because
				// reading the file fails first.
				extractor, err := NewTesseractExtractor("echo", "eng")
				Expect(err).NotTo(HaveOccurred())

				_, err = extractor.ExtractText(context.Background(), "/nonexistent/receipt.jpg")
				Expect(err).To(HaveOccurred())

				var extractionErr *ExtractionError
				Expect(errors.As(err, &extractionErr)).To(BeTrue())
				Expect(extractionErr.Path).To(Equal("/nonexistent/receipt.jpg"))
			})
		})

		When("the image cannot be decoded", func() {
			It("returns an extraction error", func() {
				extractor, err := NewTesseractExtractor("echo", "eng")
				Expect(err).NotTo(HaveOccurred())

				path := filepath.Join(GinkgoT().TempDir(), "garbage.jpg")
				Expect(os.WriteFile(path, []byte("not an image"), 0644)).To(Succeed())

				_, err = extractor.ExtractText(context.Background(), path)
				var extractionErr *ExtractionError
				Expect(errors.As(err, &extractionErr)).To(BeTrue())
			})
		})
	})
})
