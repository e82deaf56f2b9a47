package source

// RawJob mirrors the heterogeneous record shape returned by the upstream
// search API. Fields are loose on purpose: every one of them may be absent,
// and several have alternate spellings depending on the feed. Nothing past
// the normalizer ever sees this type.
type RawJob struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	RedirectURL string   `json:"redirect_url"`
	URL         string   `json:"url"` // alternate to redirect_url on some feeds
	Created     string   `json:"created"`
	CreatedAt   string   `json:"created_at"` // alternate spelling
	SalaryMin   *float64 `json:"salary_min"`
	SalaryMax   *float64 `json:"salary_max"`

	// Top-level coordinates; some feeds put them under location instead.
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Company     RawCompany  `json:"company"`
	CompanyName string      `json:"company_name"` // alternate flat field
	Location    RawLocation `json:"location"`
	City        string      `json:"city"` // alternate flat field

	ContractTime string `json:"contract_time"`
	ContractType string `json:"contract_type"`
	RemoteFlag   *bool  `json:"remote"`
}

// RawCompany is the nested company object.
type RawCompany struct {
	DisplayName string `json:"display_name"`
}

// RawLocation is the nested location object. Area is ordered from country
// down to locality.
type RawLocation struct {
	DisplayName string   `json:"display_name"`
	Area        []string `json:"area"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}
