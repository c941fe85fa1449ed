package main

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
