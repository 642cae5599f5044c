package main

func classify(x int) int {
	if x > 0 {
		return 1
	}
	return -1
}

func main() {
	classify(3)
}
