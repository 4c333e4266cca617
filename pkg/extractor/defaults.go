package extractor

// Selector set names used by the crawl profiles
const (
	SetListing     = "listing"
	SetDetailBasic = "detail.basic"
	SetDetailRich  = "detail.rich"
	SetSeller      = "seller"
)

const (
	techInfoRows = "div.technical-info dl dd, #description_v3 dl dd"
	checkBlock   = "div.technical-info div.t-check"
)

func labelled(field, label string) Rule {
	return Rule{Field: field, FieldSpec: FieldSpec{
		Selector:      techInfoRows,
		Mode:          ModeLabelled,
		Label:         label,
		LabelSelector: "span.label",
		Inner:         "span.argument",
		First:         true,
	}}
}

func sellerItem(field, contains, inner string, mode Mode) Rule {
	spec := FieldSpec{Selector: "div.item_inner", Contains: contains, Inner: inner, Mode: mode, First: true}
	if mode == ModeAttr {
		spec.Attr = "href"
	}
	return Rule{Field: field, FieldSpec: spec}
}

// DefaultSets returns the AutoRia selector sets. Each call returns a fresh
// copy.
func DefaultSets() map[string][]Rule {
	return map[string][]Rule{
		// The filter submission response is rendered through AJAX, so its
		// address comes from the language switch link, then the canonical link.
		SetListing: {
			{Field: "page_url", FieldSpec: FieldSpec{Selector: "a.selectLang", Mode: ModeAttr, Attr: "href", First: true}},
			{Field: "page_url", FieldSpec: FieldSpec{Selector: "link[rel=canonical]", Mode: ModeAttr, Attr: "href", First: true}},
			{Field: "entity_urls", FieldSpec: FieldSpec{Selector: "div.item.ticket-title > a", Mode: ModeAttr, Attr: "href"}},
		},
		SetDetailBasic: {
			{Field: "brand_model_year", FieldSpec: FieldSpec{Selector: "span.argument.d-link__name", First: true}},
			{Field: "price", FieldSpec: FieldSpec{Selector: "div.price_value strong", First: true}},
		},
		SetDetailRich: {
			{Field: "heading", FieldSpec: FieldSpec{Selector: "h1.head", First: true}},
			{Field: "heading_brand", FieldSpec: FieldSpec{Selector: "h1.head span", First: true}},
			{Field: "heading_model", FieldSpec: FieldSpec{Selector: "h1.head", Mode: ModeOwnText, Pattern: `(?s)^\s*(.*?)(?:\s*\d{4})?\s*$`, First: true}},
			{Field: "price", FieldSpec: FieldSpec{Selector: "div.price_value strong", First: true}},
			{Field: "description", FieldSpec: FieldSpec{Selector: "div.full-description", Mode: ModeMainText}},
			labelled("color", "Колір"),
			labelled("engine", "Двигун"),
			labelled("mileage", "Пробіг"),
			labelled("multimedia", "Мультимедіа"),
			labelled("comfort", "Комфорт"),
			labelled("safety", "Безпека"),
			labelled("drive", "Привід"),
			labelled("condition", "Стан"),
			labelled("gearbox", "Коробка передач"),
			labelled("technical_state", "Технічний стан"),
			labelled("owners", "Кількість власників"),
			labelled("last_operation", "Остання операція"),
			labelled("accident", "Участь в ДТП"),
			labelled("wanted", "В розшуку"),
			{Field: "state_number", FieldSpec: FieldSpec{Selector: checkBlock + " span.state-num.ua", Mode: ModeOwnText, First: true}},
			{Field: "vin_check", FieldSpec: FieldSpec{Selector: checkBlock + " span.checked_ad.label-check", First: true}},
			{Field: "vin", FieldSpec: FieldSpec{Selector: checkBlock + " span.label-vin", First: true}},
		},
		SetSeller: {
			{Field: "name", FieldSpec: FieldSpec{Selector: "h4.seller_info_name", First: true}},
			{Field: "last_visit", FieldSpec: FieldSpec{Selector: "#lastVisit strong", First: true}},
			{Field: "location", FieldSpec: FieldSpec{Selector: "ul.checked-list > li:nth-of-type(1) div", Mode: ModeOwnText, First: true}},
			{Field: "signed_in", FieldSpec: FieldSpec{Selector: "ul.checked-list > li:nth-of-type(3)", First: true}},
			sellerItem("reputation", "оцінка продавця", "span.bold", ModeText),
			{Field: "company_location", FieldSpec: FieldSpec{Selector: "div.item_inner > a.map-loc", First: true}},
			sellerItem("sold_cars", "автомобілів", "", ModeOwnText),
			sellerItem("total_active_ads", "Пропозицій компанії", "a", ModeText),
			sellerItem("total_verified_active_ads", "Перевірених пропозицій", "a", ModeText),
			sellerItem("company_website", "Сайт компанії", "a", ModeAttr),
			{Field: "verified_by_bank", FieldSpec: FieldSpec{Selector: `span[data-tooltip="Особистість продавця встановлена банком"]`, Mode: ModePresence}},
			sellerItem("phone_verified", "Перевірений банком", "", ModePresence),
			{Field: "is_company", FieldSpec: FieldSpec{Selector: "div.seller_info_title", Contains: "Компанія", Mode: ModePresence}},
		},
	}
}
