// Package checker implements the scan engines behind each scan type.
//
// Architecture overview:
//
//   - Header grading is a table of tagged rules (HeaderRule) evaluated by a
//     single interpreter, GradeHeader. New headers are added to the table,
//     not to control flow.
//   - Crawler performs the bounded breadth-first HTTP crawl. It owns the
//     construction of scan.PageResult values and runs the per-page
//     classifiers: header grading, information leakage, content heuristics,
//     cookie flags, script analysis and the CORS canary probe.
//   - TLSScanner performs a single handshake against the target and grades
//     protocol, cipher suite and certificate.
//
// Nothing in this package resolves or vets hostnames. Callers hand in an
// http.Client or dial function that is already bound to the SSRF guard.
package checker
