package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const apacheSnippet = `# Serve the maintenance page with a 503 while general maintenance is active.
# Both maintenance types share maintenance.html, so test the type marker.
# More info: http://www.shiftcommathree.com/articles/make-your-rails-maintenance-page-respond-with-a-503

ErrorDocument 503 /system/maintenance.html
RewriteEngine On
RewriteCond %{REQUEST_URI} !\.(css|gif|jpg|png)$
RewriteCond %{DOCUMENT_ROOT}/system/maintenance_general -f
RewriteCond %{SCRIPT_FILENAME} !maintenance.html
RewriteRule ^.*$  -  [redirect=503,last]

# For input-only maintenance, test the marker and restrict the rule to the
# data-input locations instead, for example:
#
# RewriteCond %{DOCUMENT_ROOT}/system/maintenance_input -f
# RewriteCond %{REQUEST_METHOD} !^(GET|HEAD)$
# RewriteRule ^.*$  -  [redirect=503,last]
`

var snippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Print the Apache rewrite rules that serve the maintenance page",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(apacheSnippet)
	},
}
