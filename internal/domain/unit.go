package domain

// Unit is a physical asset under management. Owned by the external
// asset registry; the core only reads it by identifier.
type Unit struct {
	ID          string `json:"id"`
	Serial      string `json:"serial"`
	Hostname    string `json:"hostname"`
	MgmtAddress string `json:"mgmt_address"`
	Status      string `json:"status"`
}
