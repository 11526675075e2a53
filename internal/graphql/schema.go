package graphql

// Schema is the website-facing API surface. Times are millisecond counts
// carried as Float; dates are RFC 3339 strings.
const Schema = `
schema {
	query: Query
}

type Query {
	records(first: Int, after: String): RecordConnection!
	map(gameUid: String!): Map
	player(login: String!): Player
	event(handle: String!): Event
	playerRanking(limit: Int): [RankedEntry!]!
	mapRanking(limit: Int): [RankedEntry!]!
}

type RecordConnection {
	edges: [RecordEdge!]!
	pageInfo: PageInfo!
}

type RecordEdge {
	node: Record!
	cursor: String!
}

type PageInfo {
	hasNextPage: Boolean!
	endCursor: String
}

type Record {
	id: ID!
	time: Float!
	formattedTime: String!
	respawnCount: Int!
	recordDate: String!
	player: Player!
	map: Map!
}

type Player {
	id: ID!
	login: String!
	name: String!
	escapedName: String!
	zonePath: String
	score: Float!
}

type Map {
	id: ID!
	gameUid: String!
	name: String!
	cpsNumber: Int
	author: Player!
	medals: Medals
}

type Medals {
	bronze: Float
	silver: Float
	gold: Float
	author: Float
}

type Event {
	id: ID!
	handle: String!
	editions: [EventEdition!]!
}

type EventEdition {
	id: Int!
	name: String!
	startDate: String!
	expired: Boolean!
	mappackScores: [MappackScore!]!
}

type MappackScore {
	rank: Int!
	player: Player!
	score: Float!
}

type RankedEntry {
	rank: Int!
	id: ID!
	score: Float!
}
`
