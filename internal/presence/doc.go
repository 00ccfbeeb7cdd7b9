// Package presence — учёт игровых сессий по присутствию в Steam.
//
// PollService раз в минуту берёт GetPlayerSummaries по всем игрокам
// ростера и отдаёт снимок Watcher-у. Тот держит по игроку маленькую
// машину состояний:
//
//   - первый снимок только фиксирует базлайн, сессию не открывает,
//     даже если игрок уже в игре: её начало неизвестно;
//   - запуск игры открывает сессию (и сразу пишет её в файл), выход
//     или смена игры закрывает с подсчётом длительности; у игрока не
//     бывает двух открытых сессий;
//   - повторные одинаковые снимки ничего не делают.
//
// Сессии ведутся по любой игре; в ежедневную сводку попадает только
// target (у нас Dota 2). Открытые сессии, пережившие рестарт,
// выбрасываются на старте: дописывать им конец задним числом нельзя.
// ReportService раз в сутки шлёт сводку наигранного за окно хранения
// и подрезает историю.
package presence
