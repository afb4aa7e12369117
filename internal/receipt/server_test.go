package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-table/internal/scanning"
	"github.com/zombor/receipt-table/internal/tabular"
)

// multipartUpload builds a multipart body with a single "file" part.
func multipartUpload(filename string, content []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(content)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		extractor   *mockExtractor
		interpreter *mockInterpreter
		exporter    *mockExporter
		session     *Session
		server      *Server
		recorder    *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		extractor = &mockExtractor{text: "COFFEE 3.50"}
		interpreter = newMockInterpreter()
		exporter = &mockExporter{}
		session = NewSession(NewServiceWithDeps(extractor, interpreter, exporter.export))
		server = NewServer(session, BasicAuth{})
		recorder = httptest.NewRecorder()
	})

	Describe("POST /api/receipts/process", func() {
		var resp *httptest.ResponseRecorder

		JustBeforeEach(func() {
			body, contentType := multipartUpload("receipt.jpg", []byte("fake image bytes"))
			req := httptest.NewRequest("POST", "/api/receipts/process", body)
			req.Header.Set("Content-Type", contentType)
			server.ServeHTTP(recorder, req)
			resp = recorder
		})

		When("the pipeline succeeds", func() {
			It("returns 200 with the pipeline result", func() {
				Expect(resp.Code).To(Equal(http.StatusOK))

				var result Result
				Expect(json.Unmarshal(resp.Body.Bytes(), &result)).To(Succeed())
				Expect(result.RawText).To(Equal("COFFEE 3.50"))
				Expect(result.Record.Total).To(Equal(9.25))
				Expect(result.Grid.Rows).To(HaveLen(3))
			})

			It("stores the grid in the session", func() {
				Expect(session.Grid()).NotTo(BeNil())
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.err = &scanning.ExtractionError{Path: "receipt.jpg", Err: errors.New("undecodable")}
			})

			It("returns 400 with a JSON error body", func() {
				Expect(resp.Code).To(Equal(http.StatusBadRequest))

				var body map[string]string
				Expect(json.Unmarshal(resp.Body.Bytes(), &body)).To(Succeed())
				Expect(body).To(HaveKey("error"))
			})
		})

		When("the model returns no structured payload", func() {
			BeforeEach(func() {
				interpreter.err = scanning.ErrNoStructuredPayload
			})

			It("returns 422", func() {
				Expect(resp.Code).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("the interpreter transport fails", func() {
			BeforeEach(func() {
				interpreter.err = &scanning.InterpretationError{Provider: "gemini", Err: errors.New("auth failure")}
			})

			It("returns 502", func() {
				Expect(resp.Code).To(Equal(http.StatusBadGateway))
			})
		})
	})

	Describe("GET /api/grid", func() {
		When("no receipt has been processed", func() {
			It("returns 404", func() {
				req := httptest.NewRequest("GET", "/api/grid", nil)
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusNotFound))
			})
		})

		When("a receipt has been processed", func() {
			BeforeEach(func() {
				body, contentType := multipartUpload("receipt.jpg", []byte("fake image bytes"))
				req := httptest.NewRequest("POST", "/api/receipts/process", body)
				req.Header.Set("Content-Type", contentType)
				server.ServeHTTP(httptest.NewRecorder(), req)
			})

			It("returns the grid", func() {
				req := httptest.NewRequest("GET", "/api/grid", nil)
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusOK))

				var grid tabular.Grid
				Expect(json.Unmarshal(recorder.Body.Bytes(), &grid)).To(Succeed())
				Expect(grid.Header).To(Equal([]string{"Item", "Price", "Quantity"}))
			})
		})
	})

	Describe("PUT /api/grid", func() {
		It("replaces the grid with the edited version", func() {
			grid := tabular.Grid{
				Header: []string{"Item", "Price", "Quantity"},
				Rows:   [][]string{{"Espresso", "4", "1"}},
			}
			payload, err := json.Marshal(grid)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest("PUT", "/api/grid", bytes.NewReader(payload))
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusNoContent))

			Expect(session.Grid().Rows[0][0]).To(Equal("Espresso"))
		})

		It("rejects a ragged grid", func() {
			grid := tabular.Grid{
				Header: []string{"Item", "Price", "Quantity"},
				Rows:   [][]string{{"Espresso"}},
			}
			payload, err := json.Marshal(grid)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest("PUT", "/api/grid", bytes.NewReader(payload))
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a malformed body", func() {
			req := httptest.NewRequest("PUT", "/api/grid", bytes.NewReader([]byte("not json")))
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/export", func() {
		BeforeEach(func() {
			Expect(session.ReplaceGrid(&tabular.Grid{
				Header: []string{"Item", "Price", "Quantity"},
				Rows:   [][]string{{"TOTAL", "9.25", "—"}},
			})).To(Succeed())
		})

		It("exports the session grid to the requested path", func() {
			payload, err := json.Marshal(map[string]string{"path": "table"})
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest("POST", "/api/export", bytes.NewReader(payload))
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var body map[string]string
			Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(Succeed())
			Expect(body["path"]).To(Equal("table.xlsx"))
			Expect(exporter.paths).To(ConsistOf("table.xlsx"))
		})

		It("rejects a missing path", func() {
			req := httptest.NewRequest("POST", "/api/export", bytes.NewReader([]byte(`{}`)))
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/export/download", func() {
		When("no receipt has been processed", func() {
			It("returns 404", func() {
				req := httptest.NewRequest("GET", "/api/export/download", nil)
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusNotFound))
			})
		})

		When("a grid is present", func() {
			BeforeEach(func() {
				Expect(session.ReplaceGrid(&tabular.Grid{
					Header: []string{"Item", "Price", "Quantity"},
					Rows:   [][]string{{"TOTAL", "9.25", "—"}},
				})).To(Succeed())
			})

			It("streams an xlsx attachment", func() {
				req := httptest.NewRequest("GET", "/api/export/download", nil)
				server.ServeHTTP(recorder, req)
				Expect(recorder.Code).To(Equal(http.StatusOK))
				Expect(recorder.Header().Get("Content-Type")).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
				Expect(recorder.Header().Get("Content-Disposition")).To(ContainSubstring("receipt.xlsx"))
				// xlsx files are zip archives
				Expect(recorder.Body.Bytes()[:2]).To(Equal([]byte("PK")))
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			server = NewServer(session, BasicAuth{Username: "user", Password: "secret"})
		})

		It("rejects requests without credentials", func() {
			req := httptest.NewRequest("GET", "/api/grid", nil)
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			Expect(recorder.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("rejects wrong credentials", func() {
			req := httptest.NewRequest("GET", "/api/grid", nil)
			req.SetBasicAuth("user", "wrong")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts correct credentials", func() {
			req := httptest.NewRequest("GET", "/api/grid", nil)
			req.SetBasicAuth("user", "secret")
			server.ServeHTTP(recorder, req)
			// 404 because nothing is processed yet, but auth passed
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("export to a real file", func() {
		It("writes the workbook through the default exporter", func() {
			session = NewSession(NewService(extractor, interpreter))
			server = NewServer(session, BasicAuth{})
			Expect(session.ReplaceGrid(&tabular.Grid{
				Header: []string{"Item", "Price", "Quantity"},
				Rows:   [][]string{{"TOTAL", "9.25", "—"}},
			})).To(Succeed())

			path := filepath.Join(GinkgoT().TempDir(), "table.xlsx")
			payload, err := json.Marshal(map[string]string{"path": path})
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest("POST", "/api/export", bytes.NewReader(payload))
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(path).To(BeAnExistingFile())
		})
	})
})
