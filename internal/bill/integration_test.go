package bill

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/bill-extractor/internal/document"
	"github.com/zombor/bill-extractor/internal/pages"
	"github.com/zombor/bill-extractor/internal/scanning"
)

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		scanner  *mockScanner
		server   *Server
		ghServer *ghttp.Server
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(tempDir, "samples"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(tempDir, "samples", "bill.png"), testPNG(200), 0o644)).To(Succeed())

		scanner = &mockScanner{responses: []string{
			"```json\n" + itemsJSON("Pharmacy",
				scanning.Item{Name: "Paracetamol 500mg", Quantity: 2, Rate: 5, Amount: 10},
				scanning.Item{Name: "PARACETAMOL 500MG", Quantity: 2, Rate: 5, Amount: 10},
			) + "\n```",
		}}

		fetcher := document.NewFetcher(
			document.WithLocalFiles(document.NewLocalFiles(tempDir)),
			document.WithSamplePrefixes("samples/"),
		)
		splitter := pages.NewSplitter(pages.FitzRasterizer{})
		invoker := scanning.NewInvoker(scanner)
		server = NewServer(NewService(fetcher, splitter, invoker), BasicAuth{}, "test")

		ghServer = ghttp.NewServer()
		ghServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghServer.Close()
	})

	extract := func(ref string) (int, map[string]any) {
		body, err := json.Marshal(map[string]string{"document": ref})
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ghServer.URL()+"/extract-bill-data", "application/json", strings.NewReader(string(body)))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("application/json"))

		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		var out map[string]any
		Expect(json.Unmarshal(raw, &out)).To(Succeed())
		return resp.StatusCode, out
	}

	It("should extract and deduplicate the items of a local sample", func() {
		status, body := extract("samples/bill.png")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["is_success"]).To(BeTrue())

		data := body["data"].(map[string]any)
		Expect(data["total_item_count"]).To(Equal(1.0))
		pagesOut := data["pagewise_line_items"].([]any)
		Expect(pagesOut).To(HaveLen(1))
		page := pagesOut[0].(map[string]any)
		Expect(page["page_no"]).To(Equal("1"))
		Expect(page["page_type"]).To(Equal("Pharmacy"))

		usage := body["token_usage"].(map[string]any)
		Expect(usage["total_tokens"]).To(BeNumerically(">", 0))
	})

	It("should accept the same document as a data URL", func() {
		ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(200))
		status, body := extract(ref)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["data"].(map[string]any)["total_item_count"]).To(Equal(1.0))
	})

	It("should drop items with non-numeric values and still answer with JSON", func() {
		scanner.responses = []string{`{"page_type": "Pharmacy", "bill_items": [
			{"item_name": "Gauze", "item_quantity": "nan", "item_rate": 10, "item_amount": 10},
			{"item_name": "Cotton", "item_quantity": 1, "item_rate": 10, "item_amount": 10}
		]}`}

		status, body := extract("samples/bill.png")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["is_success"]).To(BeTrue())
		data := body["data"].(map[string]any)
		Expect(data["total_item_count"]).To(Equal(1.0))
		item := data["pagewise_line_items"].([]any)[0].(map[string]any)["bill_items"].([]any)[0].(map[string]any)
		Expect(item["item_name"]).To(Equal("Cotton"))
	})

	It("should fail with 500 when the sample is missing", func() {
		status, body := extract("samples/missing.png")
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body["is_success"]).To(BeFalse())
		Expect(body["error"]).To(ContainSubstring("failed to fetch document"))
		Expect(scanner.calls).To(BeZero())
	})
})
