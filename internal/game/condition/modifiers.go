package condition

// Incapacitated reports whether any active condition prevents acting.
func Incapacitated(s *ActiveSet) bool {
	for _, ac := range s.conditions {
		if ac.Def.Incapacitates {
			return true
		}
	}
	return false
}

// SavePenalty returns the total saving-throw penalty, multiplied by stacks.
//
// Postcondition: Returns >= 0.
func SavePenalty(s *ActiveSet) int {
	total := 0
	for _, ac := range s.conditions {
		total += ac.Def.SavePenalty * ac.Stacks
	}
	return total
}
