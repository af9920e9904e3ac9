package formatting

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// FormatCPU renders a CPU quantity as fractional cores.
func FormatCPU(q resource.Quantity) string {
	return fmt.Sprintf("%.2f Cores", float64(q.MilliValue())/1000)
}

// FormatMemory renders a byte quantity in the largest unit that keeps
// the figure readable.
func FormatMemory(q resource.Quantity) string {
	value := q.Value()
	switch {
	case value >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(value)/float64(1<<30))
	case value >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(value)/float64(1<<20))
	case value >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(value)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", value)
	}
}

// FormatCPUString parses a Kubernetes CPU string ("250m", "2") and
// humanizes it. Unparseable input is returned as-is.
func FormatCPUString(s string) string {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return s
	}
	return FormatCPU(q)
}

// FormatMemoryString parses a Kubernetes memory string ("512Mi",
// "2Gi") and humanizes it. Unparseable input is returned as-is.
func FormatMemoryString(s string) string {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return s
	}
	return FormatMemory(q)
}
