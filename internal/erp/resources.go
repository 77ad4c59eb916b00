package erp

// Backend resources.
const (
	ResourcePartner         = "res.partner"
	ResourceProductTemplate = "product.template"
	ResourceProduct         = "product.product"
	ResourceBOM             = "mrp.bom"
	ResourceBOMLine         = "mrp.bom.line"
	ResourceSaleOrder       = "sale.order"
	ResourcePicking         = "stock.picking"
	ResourceLoyaltyCard     = "loyalty.card"
	ResourceMailTemplate    = "mail.template"
)

// Backend operations.
const (
	OpSearchRead    = "search_read"
	OpRead          = "read"
	OpCreate        = "create"
	OpWrite         = "write"
	OpActionConfirm = "action_confirm"
	OpActionAssign  = "action_assign"
	OpValidate      = "button_validate"
	OpMessagePost   = "message_post"
	OpSendMail      = "send_mail"
)

// Cond builds one search domain term.
func Cond(field, operator string, value any) []any {
	return []any{field, operator, value}
}

// Domain wraps search terms into the positional argument list expected by search_read.
func Domain(terms ...[]any) []any {
	domain := make([]any, 0, len(terms))
	for _, t := range terms {
		domain = append(domain, t)
	}
	return []any{domain}
}

// IDs wraps record ids into the positional argument list expected by read and action calls.
func IDs(ids ...int64) []any {
	return []any{ids}
}
