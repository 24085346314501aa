package metadata

/** @brief Identifies the hardware queue a piece of work runs on. */
type QueueFamily uint8

const (
	/** @brief The direct queue: graphics, compute and transfer. */
	QueueFamilyGraphics QueueFamily = iota
	/** @brief The asynchronous compute queue. */
	QueueFamilyCompute
	/** @brief The number of real queue families the graph schedules on. */
	QueueFamilyCount

	/** @brief Used in barriers that do not transfer ownership. */
	QueueFamilyIgnored QueueFamily = 0xff
)

func (q QueueFamily) String() string {
	switch q {
	case QueueFamilyGraphics:
		return "graphics"
	case QueueFamilyCompute:
		return "compute"
	case QueueFamilyIgnored:
		return "ignored"
	}
	return "unknown"
}

// Other returns the opposite schedulable queue.
func (q QueueFamily) Other() QueueFamily {
	if q == QueueFamilyGraphics {
		return QueueFamilyCompute
	}
	return QueueFamilyGraphics
}
