// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package images

// curated is the last-resort image set, keyed by primary category.
// Every classifier slug has an entry so the resolver can always
// assign something.
var curated = map[string][]string{
	"music": {
		"https://images.unsplash.com/photo-1470225620780-dba8ba36b745?w=1200&q=80",
		"https://images.unsplash.com/photo-1501386761578-eac5c94b800a?w=1200&q=80",
		"https://images.unsplash.com/photo-1514320291840-2e0a9bf2a9ae?w=1200&q=80",
	},
	"theater": {
		"https://images.unsplash.com/photo-1503095396549-807759245b35?w=1200&q=80",
		"https://images.unsplash.com/photo-1507924538820-ede94a04019d?w=1200&q=80",
	},
	"dance": {
		"https://images.unsplash.com/photo-1508700115892-45ecd05ae2ad?w=1200&q=80",
		"https://images.unsplash.com/photo-1547153760-18fc86324498?w=1200&q=80",
	},
	"cinema": {
		"https://images.unsplash.com/photo-1489599849927-2ee91cede3ba?w=1200&q=80",
		"https://images.unsplash.com/photo-1478720568477-152d9b164e26?w=1200&q=80",
	},
	"exhibition": {
		"https://images.unsplash.com/photo-1518998053901-5348d3961a04?w=1200&q=80",
		"https://images.unsplash.com/photo-1531243269054-5ebf6f34081e?w=1200&q=80",
	},
	"literature": {
		"https://images.unsplash.com/photo-1481627834876-b7833e8f5570?w=1200&q=80",
		"https://images.unsplash.com/photo-1524995997946-a1c2e315a42f?w=1200&q=80",
	},
	"workshop": {
		"https://images.unsplash.com/photo-1452860606245-08befc0ff44b?w=1200&q=80",
		"https://images.unsplash.com/photo-1513364776144-60967b0f800f?w=1200&q=80",
	},
	"family": {
		"https://images.unsplash.com/photo-1472162072942-cd5147eb3902?w=1200&q=80",
		"https://images.unsplash.com/photo-1536640712-4d4c36ff0e4e?w=1200&q=80",
	},
	"festival": {
		"https://images.unsplash.com/photo-1533174072545-7a4b6ad7a6c3?w=1200&q=80",
		"https://images.unsplash.com/photo-1492684223066-81342ee5ff30?w=1200&q=80",
	},
	"heritage": {
		"https://images.unsplash.com/photo-1509840841025-9088ba78a826?w=1200&q=80",
		"https://images.unsplash.com/photo-1548248823-ce16a73b6d49?w=1200&q=80",
	},
	"gastronomy": {
		"https://images.unsplash.com/photo-1414235077428-338989a2e8c0?w=1200&q=80",
		"https://images.unsplash.com/photo-1504674900247-0877df9cc836?w=1200&q=80",
	},
	"conference": {
		"https://images.unsplash.com/photo-1475721027785-f74eccf877e2?w=1200&q=80",
		"https://images.unsplash.com/photo-1540575467063-178a50c2df87?w=1200&q=80",
	},
	"tradition": {
		"https://images.unsplash.com/photo-1551972873-b7e8754e8e26?w=1200&q=80",
		"https://images.unsplash.com/photo-1528605248644-14dd04022da1?w=1200&q=80",
	},
	"science": {
		"https://images.unsplash.com/photo-1507413245164-6160d8298b31?w=1200&q=80",
		"https://images.unsplash.com/photo-1532094349884-543bc11b234d?w=1200&q=80",
	},
	"other": {
		"https://images.unsplash.com/photo-1513635269975-59663e0ac1ad?w=1200&q=80",
		"https://images.unsplash.com/photo-1519677100203-a0e668c92439?w=1200&q=80",
	},
}
