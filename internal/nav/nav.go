// Package nav models page navigation as an injectable dependency.
package nav

// Page is a navigation target served by the frontend.
type Page string

const (
	PageLogin     Page = "login.html"
	PageIndex     Page = "index.html"
	PageDashboard Page = "dashboard.html"
	PageChat      Page = "chatpage.html"
)

// Path returns the URL path of the page.
func (p Page) Path() string {
	return "/" + string(p)
}

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(page Page)
}

// Recorder is a Navigator that remembers the last requested page.
// The HTTP layer turns a recorded navigation into a redirect.
type Recorder struct {
	target Page
}

// Navigate records page as the navigation target.
func (r *Recorder) Navigate(page Page) {
	r.target = page
}

// Target returns the recorded page and whether a navigation happened.
func (r *Recorder) Target() (Page, bool) {
	return r.target, r.target != ""
}
