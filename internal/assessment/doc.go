// Package assessment owns the values assessment progression. It tracks the
// current wizard step, the three assessment collections (selected values,
// prioritized values, reflections), decides whether navigation is permitted,
// persists every mutation through a single-flight writer, and announces what
// happened on a typed event bus so UI code never has to poll.
package assessment
