package route

// progressByStatus maps an order status to a coarse delivery percentage.
var progressByStatus = map[string]int{
	"pending":          0,
	"confirmed":        10,
	"preparing":        25,
	"out_for_delivery": 60,
	"delivered":        100,
	"cancelled":        0,
}

// ProgressForStatus returns 0..100 for the status; unknown statuses map to 0.
func ProgressForStatus(status string) int {
	return progressByStatus[status]
}
