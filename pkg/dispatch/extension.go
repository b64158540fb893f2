package dispatch

import (
	"strings"

	"github.com/rhuss/wandel/pkg/catalog"
)

// extensions lists mimetypes whose extension cannot be derived from the
// mimetype's last segment.
var extensions = map[string]string{
	"application/msword": "doc",
	"application/vnd.ms-word.document.macroenabled.12":                          "docm",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.ms-word.template.macroenabled.12":                          "dotm",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.template":   "dotx",
	"application/vnd.oasis.opendocument.graphics":                               "odg",
	"application/vnd.oasis.opendocument.presentation":                           "odp",
	"application/vnd.oasis.opendocument.presentation-template":                  "otp",
	"application/vnd.oasis.opendocument.spreadsheet":                            "ods",
	"application/vnd.oasis.opendocument.spreadsheet-template":                   "ots",
	"application/vnd.oasis.opendocument.text":                                   "odt",
	"application/vnd.oasis.opendocument.text-template":                          "ott",
	"application/vnd.ms-powerpoint.template.macroenabled.12":                    "potm",
	"application/vnd.openxmlformats-officedocument.presentationml.template":     "potx",
	"application/vnd.ms-powerpoint.addin.macroenabled.12":                       "ppam",
	"application/vnd.ms-powerpoint":                                             "ppt",
	"application/vnd.ms-powerpoint.presentation.macroenabled.12":                "pptm",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/vnd.ms-powerpoint.slide.macroenabled.12":                       "sldm",
	"application/vnd.openxmlformats-officedocument.presentationml.slide":        "sldx",
	"application/vnd.sun.xml.calc.template":                                     "stc",
	"application/vnd.sun.xml.impress.template":                                  "sti",
	"application/vnd.sun.xml.writer.template":                                   "stw",
	"text/tab-separated-values":                                                 "tsv",
	"application/vnd.sun.xml.calc":                                              "sxc",
	"application/vnd.sun.xml.impress":                                           "sxi",
	"application/vnd.sun.xml.writer":                                            "sxw",
	"application/vnd.visio":                                                     "vsd",
	"application/vnd.visio2013":                                                 "vsdx",
	"application/wordperfect":                                                   "wp",
	"application/vnd.ms-excel":                                                  "xls",
	"application/vnd.ms-excel.sheet.binary.macroenabled.12":                     "xlsb",
	"application/vnd.ms-excel.sheet.macroenabled.12":                            "xlsm",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.ms-excel.template.macroenabled.12":                         "xltm",
	"application/vnd.openxmlformats-officedocument.presentationml.slideshow":    "ppsx",
	"application/vnd.ms-outlook":                                                "msg",
	"application/dita+xml":                                                      "dita",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.template":      "xltx",
	"image/svg+xml":         "svg",
	"text/plain":            "txt",
	"application/xhtml+xml": "xhtml",
	catalog.MetadataExtract: "json",
}

// ExtensionForMimetype returns the file extension used for mimetype.
// Unknown mimetypes use their last segment, so "application/pdf" gives
// "pdf".
func ExtensionForMimetype(mimetype string) string {
	if mimetype == "" {
		return ""
	}
	if ext, ok := extensions[mimetype]; ok {
		return ext
	}
	parts := strings.FieldsFunc(mimetype, func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == '|' || r == '/'
	})
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// ExtensionForTargetMimetype returns the extension for a transform result.
// Embedding metadata produces a file of the source type.
func ExtensionForTargetMimetype(target, source string) string {
	if target == catalog.MetadataEmbed {
		return ExtensionForMimetype(source)
	}
	return ExtensionForMimetype(target)
}
