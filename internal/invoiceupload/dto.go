package invoiceupload

import (
	"time"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// UploadLink is returned to the buyer who issued a token.
type UploadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Summary is the redacted view of an order shown to a supplier holding a token.
type Summary struct {
	PONumber         string         `json:"po_number"`
	SupplierName     string         `json:"supplier_name"`
	TotalAmount      string         `json:"total_amount"`
	Currency         enums.Currency `json:"currency"`
	ExpiresAt        time.Time      `json:"expires_at"`
	OrganizationName string         `json:"organization_name"`
}

// File is an uploaded invoice as received from the supplier.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        []byte
}

// UploadResult confirms a consumed token.
type UploadResult struct {
	PONumber   string    `json:"po_number"`
	ReceivedAt time.Time `json:"received_at"`
}
