// Package browser exposes the shared browser.Controller to the model as the
// navigate and readPage tools.
//
// Both tools are Exclusive on the "browser" resource: the agent acquires the
// controller's lease for the session before the first browser call runs, so
// a navigate followed by readPage in one session cannot observe a page loaded
// by another session in between.
package browser
