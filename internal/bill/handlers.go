package bill

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v before writing the status, so an unencodable value
// becomes a 500 failure instead of a truncated body.
func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
		buf.Reset()
		code = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(newFailure("Error encoding response"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Error writing response", "error", err)
	}
}

// writeFailure writes an ExtractionResponse-shaped error body.
func writeFailure(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, newFailure(message))
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Service: "Bill Data Extraction API",
		Version: s.version,
	})
}

// handleNotFound answers every unknown endpoint
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, "Endpoint not found", http.StatusNotFound)
}

// handleMethodNotAllowed answers known endpoints called with the wrong method
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleExtract extracts line items from the document named in the body
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	ref, msg := s.readDocumentRef(w, r)
	if msg != "" {
		slog.Warn("Rejected extraction request", "reason", msg)
		writeFailure(w, msg, http.StatusBadRequest)
		return
	}

	resp, err := s.extractor.Extract(r.Context(), ref)
	if err != nil {
		if resp == nil {
			resp = newFailure(err.Error())
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	if err := validateResponse(resp); err != nil {
		slog.Error("Invalid extraction response", "error", err)
		writeFailure(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("Extraction succeeded", "items", resp.Data.TotalItemCount)
	writeJSON(w, http.StatusOK, resp)
}

// readDocumentRef validates the request body and returns the document
// reference, or a message describing why the request is invalid.
func (s *Server) readDocumentRef(w http.ResponseWriter, r *http.Request) (string, string) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return "", "Request must be JSON"
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)
		}
		return "", "Error reading request body"
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", "Request body is empty"
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "Request must be JSON"
	}
	if len(payload) == 0 {
		return "", "Request body is empty"
	}

	raw, ok := payload["document"]
	if !ok {
		return "", "Missing 'document' field"
	}
	ref, ok := raw.(string)
	if !ok {
		return "", "Document must be a string"
	}
	if ref == "" {
		return "", "Document URL/data cannot be empty"
	}
	return ref, ""
}

// validateResponse checks that a successful response carries its data and a
// consistent item count.
func validateResponse(resp *ExtractionResponse) error {
	if !resp.IsSuccess {
		return nil
	}
	if resp.Data == nil {
		return errors.New("missing 'data' field")
	}
	if resp.Data.PagewiseLineItems == nil {
		return errors.New("missing 'pagewise_line_items'")
	}
	count := 0
	for _, p := range resp.Data.PagewiseLineItems {
		count += len(p.BillItems)
	}
	if count != resp.Data.TotalItemCount {
		return fmt.Errorf("total_item_count is %d but pages hold %d items", resp.Data.TotalItemCount, count)
	}
	return nil
}
