package review

// Placeholder returns the fixed sample table shown when the conversion result
// cannot be read.
func Placeholder() *Grid {
	g := New(
		[]string{"Datum", "Beschreibung", "Referenz", "Soll", "Haben", "Saldo"},
		[][]string{
			{"01.01.2024", "Gehalt Januar", "REF-0001", "", "2.500,00", "2.500,00"},
			{"03.01.2024", "Miete Januar", "REF-0002", "900,00", "", "1.600,00"},
			{"05.01.2024", "Supermarkt", "REF-0003", "54,30", "", "1.545,70"},
		},
	)
	g.placeholder = true
	return g
}
