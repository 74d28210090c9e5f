// Package metrics exposes Prometheus collectors for the income daemon.
package metrics

const namespace = "incomed"

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
