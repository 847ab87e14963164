package model

// ComboLineItem is one concession line of the checkout form. Quantity and
// price are kept as entered so that malformed input can be priced as zero
// instead of rejected.
type ComboLineItem struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}
