package printing

import (
	"fmt"
	"strings"

	"github.com/callino/pos-hobex-bridge/internal/payments"
)

// renderDocument frames the terminal's receipt text into a printable
// document. The receipt body arrives pre-formatted for the printer width, so
// framing only adds a separator header and a settlement footer around it.
func renderDocument(data payments.ReceiptData, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	rule := strings.Repeat("-", width)

	var b strings.Builder
	b.WriteString(rule)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(data.Receipt, "\n"))
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s %s\n", data.Brand, data.Amount.StringFixed(2), data.Currency))
	return b.String()
}
