// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/mailcampaign-backend/internal/model"
)

var lineBreaks = strings.NewReplacer("\r\n", "<br>", "\n", "<br>")

// RenderTemplate personalizes template for one recipient. Every string
// attribute k replaces {k}, {{k}}, [k], [[k]], <k> and <<k>>; non-string and
// unknown keys are left as written. All keys are substituted in a single
// left-to-right pass, so substituted values are never scanned again. Line
// breaks become <br> afterwards; nothing else is escaped.
func RenderTemplate(template string, r model.Recipient) string {
	pairs := make([]string, 0, len(r.Attributes)*12)
	// doubled spellings first so they win over the single form at the same offset
	for _, attr := range r.Attributes {
		if !attr.Value.IsString() || attr.Name == "" {
			continue
		}
		k, v := attr.Name, attr.Value.Str
		pairs = append(pairs,
			"{{"+k+"}}", v,
			"[["+k+"]]", v,
			"<<"+k+">>", v,
		)
	}
	for _, attr := range r.Attributes {
		if !attr.Value.IsString() || attr.Name == "" {
			continue
		}
		k, v := attr.Name, attr.Value.Str
		pairs = append(pairs,
			"{"+k+"}", v,
			"["+k+"]", v,
			"<"+k+">", v,
		)
	}

	result := template
	if len(pairs) > 0 {
		result = strings.NewReplacer(pairs...).Replace(template)
	}
	return lineBreaks.Replace(result)
}
