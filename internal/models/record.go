package models

import "time"

// CertificationType describes how a bucket is certified.
type CertificationType string

const (
	CertRegistered    CertificationType = "registered"
	CertSelfDeclared  CertificationType = "self_declared"
	CertNotApplicable CertificationType = "not_applicable"
)

// Bucket names one of the four fixed certification categories.
type Bucket string

const (
	BucketChildren     Bucket = "children"
	BucketElectrical   Bucket = "electrical"
	BucketDailyGoods   Bucket = "daily_goods"
	BucketBroadcasting Bucket = "broadcasting"
)

// ShippingFree is the shipping type of records whose source ships for free.
const ShippingFree = "free"

// Buckets lists the certification buckets in output order.
var Buckets = []Bucket{BucketChildren, BucketElectrical, BucketDailyGoods, BucketBroadcasting}

type CertificationEntry struct {
	Type       CertificationType `json:"type"`
	CertNumber string            `json:"cert_number,omitempty"`
}

// CertificationResolution holds at most one validated number per bucket.
type CertificationResolution struct {
	Children     CertificationEntry `json:"children"`
	Electrical   CertificationEntry `json:"electrical"`
	DailyGoods   CertificationEntry `json:"daily_goods"`
	Broadcasting CertificationEntry `json:"broadcasting"`
	Issue        bool               `json:"issue"`
	IssuesText   string             `json:"issues_text,omitempty"`
}

// NewCertificationResolution returns a resolution with every bucket not applicable.
func NewCertificationResolution() CertificationResolution {
	na := CertificationEntry{Type: CertNotApplicable}
	return CertificationResolution{Children: na, Electrical: na, DailyGoods: na, Broadcasting: na}
}

// Entry returns a pointer to the bucket's entry.
func (c *CertificationResolution) Entry(b Bucket) *CertificationEntry {
	switch b {
	case BucketChildren:
		return &c.Children
	case BucketElectrical:
		return &c.Electrical
	case BucketBroadcasting:
		return &c.Broadcasting
	default:
		return &c.DailyGoods
	}
}

// CategoryMapping is empty when no lookup row matched.
type CategoryMapping struct {
	TargetCategory1 string `json:"target_category_1,omitempty"`
	TargetCategory2 string `json:"target_category_2,omitempty"`
	TargetCategory3 string `json:"target_category_3,omitempty"`
	CatalogCode     string `json:"catalog_code,omitempty"`
}

func (m CategoryMapping) IsEmpty() bool {
	return m == CategoryMapping{}
}

// OutputRecord is one denormalized row handed to the registration collaborator.
type OutputRecord struct {
	SourceURL    string `json:"source_url"`
	VendorKey    string `json:"vendor_key"`
	ProductCode  string `json:"product_code"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Material     string `json:"material"`
	Manufacturer string `json:"manufacturer"`
	Spec         string `json:"spec"`
	OptionName   string `json:"option_name,omitempty"`

	BaseCost int64 `json:"base_cost"`
	Price    int64 `json:"price"`
	Stock    int   `json:"stock"`

	MinPurchase    int    `json:"min_purchase"`
	ShippingType   string `json:"shipping_type"`
	ShippingFee    int64  `json:"shipping_fee"`
	Bundling       bool   `json:"bundling"`
	RemoteArea     bool   `json:"remote_area"`
	RemoteAreaFee  int64  `json:"remote_area_fee"`
	DeliveryDays   int    `json:"delivery_days"`
	DetailTemplate string `json:"detail_template"`
	TaxType        string `json:"tax_type"`

	OriginClass OriginClass `json:"origin_class"`
	OriginPlace string      `json:"origin_place"`
	ImageUsage  string      `json:"image_usage"`
	Tags        []string    `json:"tags,omitempty"`

	MainImages  []string `json:"main_images"`
	DetailImage string   `json:"detail_image,omitempty"`

	Certification CertificationResolution `json:"certification"`
	Category      CategoryMapping         `json:"category"`
}

// ItemResult reports the outcome of one source URL.
type ItemResult struct {
	URL     string         `json:"url"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Records []OutputRecord `json:"records,omitempty"`
}

// BatchResult collects per-URL results in input order.
type BatchResult struct {
	Items      []ItemResult `json:"items"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Records returns all produced records in URL order.
func (b *BatchResult) Records() []OutputRecord {
	var out []OutputRecord
	for _, item := range b.Items {
		out = append(out, item.Records...)
	}
	return out
}

func (b *BatchResult) Succeeded() int {
	n := 0
	for _, item := range b.Items {
		if item.Success {
			n++
		}
	}
	return n
}
